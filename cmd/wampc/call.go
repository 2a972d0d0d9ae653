package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jcelliott/wampc"
)

func callCmd(g *globalFlags) *cobra.Command {
	var (
		kw      []string
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "call <procedure> [args...]",
		Short: "Call a procedure and print its result",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kwargs, err := parseKwargs(kw)
			if err != nil {
				return err
			}
			ctx, stop := interrupted()
			defer stop()

			sess, err := g.connect(ctx)
			if err != nil {
				return err
			}
			defer sess.Close()

			var opts *wampc.CallOptions
			if timeout > 0 {
				opts = &wampc.CallOptions{Timeout: timeout}
			}
			res, err := sess.Call(ctx, args[0], parseArgs(args[1:]), kwargs, opts)
			var perr *wampc.ProtocolError
			if errors.As(err, &perr) {
				printPayload(string(perr.Reason), perr.Args, perr.Kwargs)
				return fmt.Errorf("call %s: %s", args[0], perr.Reason)
			}
			if err != nil {
				return err
			}
			printPayload("result", res.Arguments, res.ArgumentsKw)
			return sess.Leave(ctx)
		},
	}

	cmd.Flags().StringArrayVar(&kw, "kw", nil, "keyword argument as key=value (repeatable)")
	cmd.Flags().DurationVar(&timeout, "call-timeout", 0, "ask the dealer to cancel the call after this long")

	return cmd
}
