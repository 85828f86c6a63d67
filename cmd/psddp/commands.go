package main

import (
	"bufio"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/muurk/psddp/internal/config"
	"github.com/muurk/psddp/internal/ddp"
	"github.com/muurk/psddp/internal/discovery"
	"github.com/muurk/psddp/internal/logging"
	"github.com/muurk/psddp/internal/oauth"
	"github.com/muurk/psddp/internal/store"
	"github.com/muurk/psddp/internal/ui"
)

// Command flags
var (
	searchHost    string
	searchTimeout time.Duration
	targetHost    string
	credential    string
	nickname      string
	feedTimeout   time.Duration
	storeRegion   string
)

// storeBaseURL is the PS Store endpoint used by 'games lookup'
var storeBaseURL = store.DefaultBaseURL

func init() {
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(wakeupCmd)
	rootCmd.AddCommand(launchCmd)
	rootCmd.AddCommand(linkCmd)
	rootCmd.AddCommand(credentialCmd)
	rootCmd.AddCommand(gamesCmd)
	rootCmd.AddCommand(feedsCmd)
}

// searchCmd discovers consoles on the network
var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Search for consoles on the network",
	Long: `Broadcast a DDP search request and list every console that answers.

Each console found is remembered in the config file so later commands can
use its saved name and credential.`,
	Example: `  # Search the local segment
  psddp search

  # Wait longer for slow networks
  psddp search --timeout 10s

  # Ask a single console
  psddp search --host 192.168.1.20`,
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().StringVar(&searchHost, "host", ddp.BroadcastAddress, "Address to search")
	searchCmd.Flags().DurationVar(&searchTimeout, "timeout", 0, "How long to wait for answers (default from preferences)")
}

func runSearch(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	reg, err := config.LoadRegistry()
	if err != nil {
		return err
	}

	client := newClient(cmd, reg)
	if searchTimeout > 0 {
		client.Timeout = searchTimeout
	}

	statuses, err := client.Search(cmd.Context(), searchHost)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	rememberStatuses(reg, statuses)
	ui.NewPrinter(cmd.OutOrStdout()).PrintStatuses(statuses, reg.GameTitle)
	return nil
}

// statusCmd queries one console, or every console when no host is given
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show console status",
	Long: `Ask a console for its status and print whether it is on or in standby
and what it is running. Without --host every console on the segment is asked.`,
	Example: `  # Status of one console
  psddp status --host 192.168.1.20

  # Status of every console
  psddp status`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&targetHost, "host", "", "Console address")
}

func runStatus(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	reg, err := config.LoadRegistry()
	if err != nil {
		return err
	}
	client := newClient(cmd, reg)
	printer := ui.NewPrinter(cmd.OutOrStdout())

	var statuses []*ddp.Status
	if targetHost == "" {
		statuses, err = client.Search(cmd.Context(), ddp.BroadcastAddress)
		if err != nil {
			return fmt.Errorf("status failed: %w", err)
		}
	} else {
		st, err := client.Status(cmd.Context(), targetHost)
		if err != nil {
			return fmt.Errorf("status failed: %w", err)
		}
		if st == nil {
			err := fmt.Errorf("%s did not answer within %s", targetHost, client.Timeout)
			printer.PrintError("No answer", err)
			return err
		}
		statuses = []*ddp.Status{st}
	}

	rememberStatuses(reg, statuses)
	printer.PrintStatuses(statuses, reg.GameTitle)
	return nil
}

// rememberStatuses records answers in the registry and saves it. A failed
// save is logged rather than failing the command.
func rememberStatuses(reg *config.Registry, statuses []*ddp.Status) {
	if len(statuses) == 0 {
		return
	}
	now := time.Now()
	for _, st := range statuses {
		reg.RecordStatus(st, now)
	}
	if err := reg.Save(); err != nil {
		logging.Warn("Failed to save registry", zap.Error(err))
	}
}

var wakeupCmd = &cobra.Command{
	Use:   "wakeup",
	Short: "Wake a console from standby",
	Long: `Send a DDP wakeup request to a console in standby.

The console only accepts requests carrying the credential of an account
registered on it. The credential is taken from --credential, then from the
console's saved entry, then from the default credential saved by
'psddp credential'.`,
	Example: `  psddp wakeup --host 192.168.1.20
  psddp wakeup --host 192.168.1.20 --credential <64 hex chars>`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRequest(cmd, "Wakeup sent", (*ddp.Client).Wakeup)
	},
}

var launchCmd = &cobra.Command{
	Use:   "launch",
	Short: "Ask a console to accept a remote session",
	Long: `Send a DDP launch request to a console. Credentials are resolved the
same way as for 'psddp wakeup'.`,
	Example: `  psddp launch --host 192.168.1.20`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRequest(cmd, "Launch sent", (*ddp.Client).Launch)
	},
}

func init() {
	for _, c := range []*cobra.Command{wakeupCmd, launchCmd} {
		c.Flags().StringVar(&targetHost, "host", "", "Console address")
		c.Flags().StringVar(&credential, "credential", "", "Account credential (default from config)")
		_ = c.MarkFlagRequired("host")
	}
}

// errNoCredential is returned when no credential is known for a console
var errNoCredential = errors.New("no credential known for console")

func runRequest(cmd *cobra.Command, title string, send func(*ddp.Client, string, string) error) error {
	cmd.SilenceUsage = true

	reg, err := config.LoadRegistry()
	if err != nil {
		return err
	}

	cred := credential
	if cred == "" {
		cred = reg.CredentialFor(targetHost)
	}
	if cred == "" {
		return fmt.Errorf("%w %s: pass --credential or run 'psddp credential'", errNoCredential, targetHost)
	}

	if err := send(newClient(cmd, reg), targetHost, cred); err != nil {
		return err
	}
	details := []ui.Detail{{Key: "Host", Value: targetHost}}
	if dev := reg.GetDevice(targetHost); dev != nil && dev.Nickname != "" {
		details = append(details, ui.Detail{Key: "Nickname", Value: dev.Nickname})
	}
	ui.NewPrinter(cmd.OutOrStdout()).PrintSuccess(title, details...)
	return nil
}

// linkCmd saves a credential for one console
var linkCmd = &cobra.Command{
	Use:   "link",
	Short: "Save a credential for a console",
	Long: `Store the credential (and optionally a nickname) used for a console, so
wakeup and launch can find it without --credential.`,
	Example: `  psddp link --host 192.168.1.20 --credential <64 hex chars> --nickname "Living Room"`,
	RunE:    runLink,
}

func init() {
	linkCmd.Flags().StringVar(&targetHost, "host", "", "Console address")
	linkCmd.Flags().StringVar(&credential, "credential", "", "Account credential")
	linkCmd.Flags().StringVar(&nickname, "nickname", "", "Display name for the console")
	_ = linkCmd.MarkFlagRequired("host")
	_ = linkCmd.MarkFlagRequired("credential")
}

func runLink(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	reg, err := config.LoadRegistry()
	if err != nil {
		return err
	}
	reg.SetDeviceCredential(targetHost, credential)
	if nickname != "" {
		reg.SetDeviceNickname(targetHost, nickname)
	}
	if err := reg.Save(); err != nil {
		return err
	}

	details := []ui.Detail{{Key: "Host", Value: targetHost}}
	if nickname != "" {
		details = append(details, ui.Detail{Key: "Nickname", Value: nickname})
	}
	ui.NewPrinter(cmd.OutOrStdout()).PrintSuccess("Console linked", details...)
	return nil
}

// credentialCmd derives the account credential through a PSN login
var credentialCmd = &cobra.Command{
	Use:   "credential",
	Short: "Sign in and save the account credential",
	Long: `Derive the DDP credential for your account by signing in to PSN.

Open the printed URL in a browser and sign in. The browser is then sent to a
page that fails to load; copy its full URL from the address bar and paste it
here. The derived credential is saved as the default, or for one console
with --host.`,
	RunE: runCredential,
}

func init() {
	credentialCmd.Flags().StringVar(&targetHost, "host", "", "Save the credential for this console only")
}

func runCredential(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	reg, err := config.LoadRegistry()
	if err != nil {
		return err
	}

	client := oauth.NewClient()
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Open this URL and sign in:\n\n  %s\n\n", client.LoginURL())
	fmt.Fprint(out, "Paste the redirect URL: ")

	scanner := bufio.NewScanner(cmd.InOrStdin())
	scanner.Buffer(make([]byte, 0, 4096), 64*1024)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return err
		}
		return errors.New("no redirect URL entered")
	}

	account, err := client.GetUserAccount(cmd.Context(), strings.TrimSpace(scanner.Text()))
	if err != nil {
		var details []ui.Detail
		if oauth.IsAuthError(err, oauth.ErrTypeRedirect) {
			details = append(details, ui.Detail{Key: "Hint", Value: "paste the whole address bar URL, including ?code="})
		}
		ui.NewPrinter(out).PrintError("Sign-in failed", err, details...)
		return err
	}

	if targetHost != "" {
		reg.SetDeviceCredential(targetHost, account.Credential)
	} else {
		reg.Credential = account.Credential
	}
	if err := reg.Save(); err != nil {
		return err
	}

	ui.NewPrinter(out).PrintSuccess("Credential saved",
		ui.Detail{Key: "Account", Value: account.UserID},
		ui.Detail{Key: "Credential", Value: account.Credential},
	)
	return nil
}

// gamesCmd lists titles learned from console status
var gamesCmd = &cobra.Command{
	Use:   "games",
	Short: "List learned game titles",
	Long: `List the titles learned from consoles' running-app fields. Titles set
with 'psddp games set' are locked and never renamed automatically, not even
by 'psddp games lookup'.`,
	Args: cobra.NoArgs,
	RunE: runGames,
}

var gamesSetCmd = &cobra.Command{
	Use:     "set <title-id> <title>",
	Short:   "Set the display name for a title id",
	Example: `  psddp games set PPSA01234 "My Favourite Game"`,
	Args:    cobra.ExactArgs(2),
	RunE:    runGamesSet,
}

var gamesLookupCmd = &cobra.Command{
	Use:   "lookup <title-id>...",
	Short: "Look up titles in the PS Store",
	Long: `Fetch each title's store record and save its name, content type, SKU and
cover art URL. Locked titles keep their name. The store country comes from
--region, then the region preference, then "United States".`,
	Example: `  psddp games lookup CUSA00552
  psddp games lookup --region "United Kingdom" PPSA01234 CUSA00552`,
	Args: cobra.MinimumNArgs(1),
	RunE: runGamesLookup,
}

func init() {
	gamesLookupCmd.Flags().StringVar(&storeRegion, "region", "", "PS Store country (default from preferences)")
	gamesCmd.AddCommand(gamesSetCmd)
	gamesCmd.AddCommand(gamesLookupCmd)
}

func runGames(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	reg, err := config.LoadRegistry()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(reg.Games) == 0 {
		fmt.Fprintln(out, "No games learned yet")
		return nil
	}

	ids := make([]string, 0, len(reg.Games))
	for id := range reg.Games {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		game := reg.Games[id]
		line := id + "\t" + game.Title
		if game.Locked {
			line += "\t(locked)"
		}
		if game.GameType != "" {
			line += "\t" + game.GameType
		}
		fmt.Fprintln(out, line)
	}
	return nil
}

func runGamesSet(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	reg, err := config.LoadRegistry()
	if err != nil {
		return err
	}
	reg.SetGame(args[0], args[1])
	if err := reg.Save(); err != nil {
		return err
	}
	ui.NewPrinter(cmd.OutOrStdout()).PrintSuccess("Title saved",
		ui.Detail{Key: "Title ID", Value: args[0]},
		ui.Detail{Key: "Title", Value: args[1]},
	)
	return nil
}

func runGamesLookup(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	reg, err := config.LoadRegistry()
	if err != nil {
		return err
	}

	region := storeRegion
	if region == "" {
		region = reg.Preferences.RegionOrDefault()
	}
	client := store.NewClient(region)
	client.BaseURL = storeBaseURL

	printer := ui.NewPrinter(cmd.OutOrStdout())
	var failed error
	for _, titleID := range args {
		rec, err := client.Lookup(cmd.Context(), titleID)
		if errors.Is(err, store.ErrUnknownRegion) {
			return fmt.Errorf("%w; known regions: %s", err, strings.Join(store.Regions(), ", "))
		}
		if err != nil {
			printer.PrintError("Lookup failed", err, ui.Detail{Key: "Title ID", Value: titleID})
			failed = err
			continue
		}

		reg.ApplyStoreRecord(rec)
		details := []ui.Detail{
			{Key: "Title ID", Value: titleID},
			{Key: "Title", Value: reg.GameTitle(titleID)},
		}
		if rec.Name != reg.GameTitle(titleID) {
			details = append(details, ui.Detail{Key: "Store name", Value: rec.Name})
		}
		details = append(details,
			ui.Detail{Key: "Type", Value: rec.GameType},
			ui.Detail{Key: "SKU", Value: rec.SKUID},
			ui.Detail{Key: "Cover art", Value: rec.CoverArt},
		)
		printer.PrintSuccess("Title looked up", details...)
	}

	if err := reg.Save(); err != nil {
		return err
	}
	return failed
}

// feedsCmd lists status feeds advertised by 'psddp watch --advertise'
var feedsCmd = &cobra.Command{
	Use:   "feeds",
	Short: "Find status feeds on the network",
	Long: `Browse mDNS for status feeds published by 'psddp watch --serve --advertise'
and print their WebSocket URLs.`,
	RunE: runFeeds,
}

func init() {
	feedsCmd.Flags().DurationVar(&feedTimeout, "timeout", discovery.DefaultScanTimeout, "How long to browse")
}

func runFeeds(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Browsing for feeds (timeout: %s)...\n\n", feedTimeout)

	feeds, err := discovery.ScanForFeeds(cmd.Context(), feedTimeout)
	if err != nil {
		return fmt.Errorf("browse failed: %w", err)
	}
	if len(feeds) == 0 {
		fmt.Fprintln(out, "No feeds found.")
		return nil
	}

	for i, feed := range feeds {
		fmt.Fprintf(out, "%d. %s\n", i+1, feed.Instance)
		fmt.Fprintf(out, "   URL:     %s\n", feed.URL())
		if hosts := feed.GetMetadata(discovery.TXTHosts); hosts != "" {
			fmt.Fprintf(out, "   Hosts:   %s\n", hosts)
		}
		if v := feed.GetMetadata(discovery.TXTVersion); v != "" {
			fmt.Fprintf(out, "   Version: %s\n", v)
		}
		fmt.Fprintln(out)
	}
	return nil
}
