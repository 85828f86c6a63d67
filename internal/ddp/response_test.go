package ddp

import (
	"testing"
)

const onResponse = "HTTP/1.1 200 Ok\n" +
	"host-id:0123456789AB\n" +
	"host-type:PS5\n" +
	"host-name:Living Room\n" +
	"host-request-port:997\n" +
	"running-app-name:Game: The Subtitle: Part 2\n" +
	"running-app-titleid:PPSA01234\n" +
	"device-discovery-protocol-version:00020020\n" +
	"system-version:07020001\n"

func TestDecode(t *testing.T) {
	status := Decode(onResponse)

	if status.Code != StatusOK {
		t.Errorf("Code = %d, want %d", status.Code, StatusOK)
	}
	if status.Text != "Ok" {
		t.Errorf("Text = %q, want %q", status.Text, "Ok")
	}

	want := map[string]string{
		KeyHostID:             "0123456789AB",
		KeyHostType:           "PS5",
		KeyHostName:           "Living Room",
		KeyHostRequestPort:    "997",
		KeyRunningAppName:     "Game: The Subtitle: Part 2",
		KeyRunningAppTitleID:  "PPSA01234",
		HeaderProtocolVersion: "00020020",
		KeySystemVersion:      "07020001",
	}
	if len(status.Fields) != len(want) {
		t.Errorf("Fields has %d entries, want %d: %v", len(status.Fields), len(want), status.Fields)
	}
	for k, v := range want {
		if got := status.Fields[k]; got != v {
			t.Errorf("Fields[%q] = %q, want %q", k, got, v)
		}
	}
}

func TestDecode_EdgeCases(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		wantCode int
		wantText string
		want     map[string]string
	}{
		{
			name:     "standby with trailing spaces",
			text:     "HTTP/1.1 620 Server Standby   \nhost-name:PS5\n",
			wantCode: StatusStandby,
			wantText: "Server Standby",
			want:     map[string]string{KeyHostName: "PS5"},
		},
		{
			name:     "CRLF line endings",
			text:     "HTTP/1.1 200 Ok\r\nhost-name:PS5\r\n\r\n",
			wantCode: StatusOK,
			wantText: "Ok",
			want:     map[string]string{KeyHostName: "PS5"},
		},
		{
			name: "malformed lines are skipped",
			text: "garbage line\nHTTP/1.0 200 Ok\n:\nhost-name:PS5\n",
			want: map[string]string{KeyHostName: "PS5"},
		},
		{
			name: "duplicate keys keep the last value",
			text: "host-name:first\nhost-name:second\n",
			want: map[string]string{KeyHostName: "second"},
		},
		{
			name: "app name is written last",
			text: "running-app-name:A: B\nrunning-app-titleid:X\nrunning-app-name:C: D\n",
			want: map[string]string{KeyRunningAppName: "C: D", KeyRunningAppTitleID: "X"},
		},
		{
			name: "value split on first colon only",
			text: "host-id:aa:bb:cc\n",
			want: map[string]string{KeyHostID: "aa:bb:cc"},
		},
		{
			name: "empty input",
			text: "",
			want: map[string]string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status := Decode(tt.text)
			if status.Code != tt.wantCode {
				t.Errorf("Code = %d, want %d", status.Code, tt.wantCode)
			}
			if status.Text != tt.wantText {
				t.Errorf("Text = %q, want %q", status.Text, tt.wantText)
			}
			if len(status.Fields) != len(tt.want) {
				t.Errorf("Fields = %v, want %v", status.Fields, tt.want)
			}
			for k, v := range tt.want {
				if got, ok := status.Fields[k]; !ok || got != v {
					t.Errorf("Fields[%q] = %q (present %v), want %q", k, got, ok, v)
				}
			}
		})
	}
}

func TestDecode_SearchEcho(t *testing.T) {
	inputs := []string{
		SearchMessage(),
		"SRCH * HTTP/1.1\n",
		"HTTP/1.1 200 Ok\nhost-name:PS5\nnote:SRCH\n",
		"prefixSRCHsuffix",
	}

	for _, in := range inputs {
		status := Decode(in)
		if !status.Empty() {
			t.Errorf("Decode(%q) = %v, want empty", in, status)
		}
		if status.Fields == nil {
			t.Errorf("Decode(%q).Fields should be non-nil", in)
		}
	}
}

func TestStatus_Equal(t *testing.T) {
	a := Decode(onResponse)
	b := Decode(onResponse)

	if !a.Equal(b) {
		t.Error("identical responses should be equal")
	}

	b.Fields[KeyRunningAppTitleID] = "PPSA99999"
	if a.Equal(b) {
		t.Error("responses with a different title id should not be equal")
	}

	var nilStatus *Status
	if !nilStatus.Equal(nil) {
		t.Error("nil should equal nil")
	}
	if a.Equal(nil) || nilStatus.Equal(a) {
		t.Error("nil should not equal a non-nil status")
	}
}

func TestStatus_CloneIsIndependent(t *testing.T) {
	a := Decode(onResponse)
	b := a.Clone()
	b.Fields[KeyHostName] = "changed"

	if a.HostName() != "Living Room" {
		t.Errorf("original HostName = %q after modifying clone", a.HostName())
	}
}

func TestStatus_Accessors(t *testing.T) {
	status := Decode(onResponse)
	status.Fields[KeyHostIP] = "192.168.1.20"

	checks := map[string][2]string{
		"HostIP":   {status.HostIP(), "192.168.1.20"},
		"HostID":   {status.HostID(), "0123456789AB"},
		"HostName": {status.HostName(), "Living Room"},
		"AppName":  {status.AppName(), "Game: The Subtitle: Part 2"},
		"TitleID":  {status.TitleID(), "PPSA01234"},
	}
	for name, c := range checks {
		if c[0] != c[1] {
			t.Errorf("%s() = %q, want %q", name, c[0], c[1])
		}
	}

	if !status.IsOn() || status.IsStandby() {
		t.Errorf("IsOn() = %v, IsStandby() = %v for a 200 response", status.IsOn(), status.IsStandby())
	}

	var nilStatus *Status
	if nilStatus.HostName() != "" || nilStatus.IsOn() {
		t.Error("accessors on nil status should return zero values")
	}
}

func TestStatus_Map(t *testing.T) {
	status := Decode("HTTP/1.1 620 Server Standby\nhost-name:PS5\n")
	m := status.Map()

	if m[KeyStatusCode] != StatusStandby {
		t.Errorf("Map()[status_code] = %v, want %d", m[KeyStatusCode], StatusStandby)
	}
	if m[KeyStatus] != "Server Standby" {
		t.Errorf("Map()[status] = %v", m[KeyStatus])
	}
	if m[KeyHostName] != "PS5" {
		t.Errorf("Map()[host-name] = %v", m[KeyHostName])
	}

	echo := Decode(SearchMessage()).Map()
	if len(echo) != 0 {
		t.Errorf("Map() of search echo = %v, want empty", echo)
	}
}

func TestStatus_String(t *testing.T) {
	status := Decode("HTTP/1.1 200 Ok\nb:2\na:1\n")
	want := "Status{200 Ok, a=1, b=2}"
	if got := status.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}

	var nilStatus *Status
	if nilStatus.String() != "<nil>" {
		t.Errorf("nil String() = %q", nilStatus.String())
	}
}
