// Package cli — login.go implements the "mergin login" command.
//
// Login authenticates against a server and prints shell export lines
// for MERGIN_URL and MERGIN_AUTH, so the session can be adopted with
// eval: eval "$(mergin login https://example.com)".
package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/lutraconsulting/mergin-go/internal/client"
	"github.com/lutraconsulting/mergin-go/internal/model"
)

// loginFlags holds the flag values for the login command.
type loginFlags struct {
	login    string // --login: user name; prompted when empty
	password string // --password: prompted without echo when empty
}

// NewLoginCommand creates the "login" cobra command.
func NewLoginCommand() *cobra.Command {
	flags := &loginFlags{}

	cmd := &cobra.Command{
		Use:   "login <url>",
		Short: "Fetch a new authentication token",
		Long: `Authenticate against a Mergin server and print the session token.

The output is shell export lines; adopt the session with:

  eval "$(mergin login https://example.com)"

Credentials are read from the --login/--password flags when given,
otherwise prompted interactively (the password prompt does not echo).`,

		Args: cobra.ExactArgs(1),

		RunE: func(cmd *cobra.Command, args []string) error {
			return runLogin(cmd.Context(), args[0], flags)
		},
	}

	cmd.Flags().StringVar(&flags.login, "login", "", "User name (prompted when omitted)")
	cmd.Flags().StringVar(&flags.password, "password", "", "Password (prompted when omitted)")

	return cmd
}

// runLogin verifies server compatibility, collects credentials and
// performs the login.
func runLogin(ctx context.Context, serverURL string, flags *loginFlags) error {
	log := newLogger()
	defer func() { _ = log.Sync() }()

	c, err := client.New(serverURL, client.WithLogger(log), client.WithUserAgent("mergin-go/"+Version))
	if err != nil {
		return err
	}

	compatible, err := c.IsServerCompatible(ctx)
	if err != nil {
		return model.WrapCLIError(model.ExitServerError, "could not reach server", err)
	}
	if !compatible {
		return model.NewCLIError(model.ExitIncompatibleServer,
			"this client version is incompatible with the server, try to upgrade")
	}

	login := flags.login
	if login == "" {
		if login, err = promptLine("Login: "); err != nil {
			return err
		}
	}
	password := flags.password
	if password == "" {
		if password, err = promptPassword("Password: "); err != nil {
			return err
		}
	}

	session, err := c.Login(ctx, login, password)
	if err != nil {
		return err
	}

	printLoginResult(serverURL, session)
	return nil
}

// promptLine reads one line from stdin after printing the prompt to
// stderr, keeping stdout clean for the export lines.
func promptLine(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return "", model.WrapCLIError(model.ExitGeneralError, "read input", err)
	}
	return strings.TrimSpace(line), nil
}

// promptPassword reads a line from stdin without echoing it. Falls back
// to a plain read when stdin is not a terminal (e.g. piped input).
func promptPassword(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return promptLine(prompt)
	}
	fmt.Fprint(os.Stderr, prompt)
	data, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", model.WrapCLIError(model.ExitGeneralError, "read password", err)
	}
	return string(data), nil
}

// printLoginResult outputs the session in text (shell exports) or JSON.
func printLoginResult(serverURL string, session client.Session) {
	if IsJSONOutput() {
		result := map[string]string{
			"url":    serverURL,
			"token":  session.Token,
			"expire": session.Expire,
		}
		data, _ := json.MarshalIndent(result, "", "  ")
		fmt.Println(string(data))
		return
	}

	fmt.Printf("export MERGIN_URL=%q\n", serverURL)
	fmt.Printf("export MERGIN_AUTH=%q\n", session.Token)
}
