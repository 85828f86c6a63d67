// Package oauth obtains the PSN account credential used in DDP WAKEUP and
// LAUNCH requests.
//
// The flow is manual: the user opens LoginURL in a browser, signs in, and
// copies the URL of the page they are redirected to. GetUserAccount takes
// that URL, exchanges its code for a token and looks up the account:
//
//	client := oauth.NewClient()
//	fmt.Println(client.LoginURL())
//	account, err := client.GetUserAccount(ctx, redirectURL)
//	if err != nil {
//	    return err
//	}
//	fmt.Println(account.Credential)
package oauth
