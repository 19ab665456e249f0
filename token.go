package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/ircup/internal/config"
	"github.com/tonimelisma/ircup/internal/extjwt"
)

func newTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Request an EXTJWT token and show its claims",
		Long: `Connect to the configured IRC network, request an EXTJWT token and print
it together with its decoded claims. The signature is not verified.

Useful for checking what the upload server will receive.`,
		Args: cobra.NoArgs,
		RunE: runToken,
	}

	addSessionFlags(cmd)

	return cmd
}

func runToken(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())
	ctx := shutdownContext(cmd.Context(), cc.Logger)

	session, err := NewSession(ctx, config.NewHolder(cc.Cfg, cc.CfgPath), cc.Logger)
	if err != nil {
		return err
	}
	defer session.Close()

	if v, ok := session.Conn.ISupport(extjwt.Command); !ok || v != "1" {
		return fmt.Errorf("%s does not advertise %s=1 (got %q)", session.Conn, extjwt.Command, v)
	}

	token, ok, err := session.Tokens.Get(session.Conn).Resolve(ctx)
	if err != nil {
		return fmt.Errorf("requesting token: %w", err)
	}

	if !ok {
		return fmt.Errorf("%s rejected the %s command", session.Conn, extjwt.Command)
	}

	claims, err := extjwt.Inspect(token)
	if err != nil {
		cc.Logger.Warn("token is not a decodable JWT", slog.String("error", err.Error()))
	}

	return printToken(os.Stdout, cc.Flags.JSON, token, claims)
}

func printToken(w io.Writer, asJSON bool, token string, claims extjwt.Claims) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")

		return enc.Encode(struct {
			Token  string        `json:"token"`
			Claims extjwt.Claims `json:"claims"`
		}{token, claims})
	}

	fmt.Fprintln(w, token)
	fmt.Fprintln(w)

	rows := [][]string{
		{"subject", claims.Subject},
		{"issuer", claims.Issuer},
		{"account", claims.Account},
		{"channel", claims.Channel},
	}

	if !claims.ExpiresAt.IsZero() {
		rows = append(rows, []string{"expires", claims.ExpiresAt.Local().Format(time.RFC3339)})
	}

	printTable(w, []string{"CLAIM", "VALUE"}, rows)

	return nil
}
