package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jcelliott/wampc"
)

func subscribeCmd(g *globalFlags) *cobra.Command {
	var match string

	cmd := &cobra.Command{
		Use:   "subscribe <topic>",
		Short: "Print events published to a topic",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := interrupted()
			defer stop()

			sess, err := g.connect(ctx)
			if err != nil {
				return err
			}
			defer sess.Close()

			var opts *wampc.SubscribeOptions
			if match != "" {
				opts = &wampc.SubscribeOptions{Match: match}
			}
			sub, err := sess.Subscribe(ctx, args[0], func(ev *wampc.Event) {
				printPayload(fmt.Sprintf("[%d]", ev.Publication), ev.Arguments, ev.ArgumentsKw)
			}, opts)
			if err != nil {
				return err
			}
			fmt.Printf("subscribed to %s (subscription %d)\n", sub.Topic(), sub.ID())

			select {
			case <-ctx.Done():
				return sess.Leave(cmd.Context())
			case <-sess.Done():
				return sess.Err()
			}
		},
	}

	cmd.Flags().StringVar(&match, "match", "", "topic matching policy: prefix or wildcard")

	return cmd
}
