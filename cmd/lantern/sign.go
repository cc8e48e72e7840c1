package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bowerhall/lantern/internal/signature"
)

const signLongDesc string = `Compute the handshake signature for a timestamp and nonce.

Useful for hand-testing the validation endpoint:

  curl "http://localhost/wechat?signature=$(lantern sign 1700000000 abc)&timestamp=1700000000&nonce=abc&echostr=ok"`

type signCommander struct {
	token string
}

func newSignCmd() *cobra.Command {
	cmder := &signCommander{}

	cmd := &cobra.Command{
		Use:   "sign <timestamp> <nonce>",
		Short: "Print a handshake signature",
		Long:  signLongDesc,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmder.token == "" {
				return errors.New("no token: set WECHAT_TOKEN or pass --token")
			}
			fmt.Fprintln(cmd.OutOrStdout(), signature.Sign(cmder.token, args[0], args[1]))
			return nil
		},
	}

	cmd.Flags().StringVar(&cmder.token, "token", envOr("WECHAT_TOKEN", ""), "Handshake token")

	return cmd
}
