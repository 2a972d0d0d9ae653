package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jcelliott/wampc"
)

func publishCmd(g *globalFlags) *cobra.Command {
	var (
		kw          []string
		acknowledge bool
	)

	cmd := &cobra.Command{
		Use:   "publish <topic> [args...]",
		Short: "Publish an event to a topic",
		Long: `Publish an event to a topic. Each argument is parsed as JSON and sent as a
string when it is not valid JSON.`,
		Args: cobra.MinimumNArgs(1),
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

			if !acknowledge {
				if err := sess.Publish(args[0], parseArgs(args[1:]), kwargs); err != nil {
					return err
				}
				return sess.Leave(ctx)
			}
			pub, err := sess.PublishWithOptions(ctx, args[0], parseArgs(args[1:]), kwargs,
				&wampc.PublishOptions{Acknowledge: true})
			if err != nil {
				return err
			}
			fmt.Printf("published %d\n", pub)
			return sess.Leave(ctx)
		},
	}

	cmd.Flags().StringArrayVar(&kw, "kw", nil, "keyword argument as key=value (repeatable)")
	cmd.Flags().BoolVar(&acknowledge, "ack", false, "wait for the router to acknowledge the publication")

	return cmd
}
