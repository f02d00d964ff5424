package cmd

import (
	"github.com/spf13/cobra"

	"github.com/signato/signato-auth/logging"
	"github.com/signato/signato-auth/pkg/agent"
)

var envelopeFormat string

// agentCmd represents the agent command, started by the browser through the
// registered URI scheme with the launch URI as its argument.
var agentCmd = &cobra.Command{
	Use:   "agent [launch-uri]",
	Short: "Run the desktop smart card signing agent",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		signingAgent := agent.New(agent.Config{
			LaunchURI: args[0],
			Envelope:  agent.EnvelopeFormat(envelopeFormat),
		},
			agent.NewTokenCertStore(agent.LoadModule, nil),
			agent.NewConsolePrompt(),
			agent.LoadModule,
			nil, nil)

		if err := signingAgent.Run(); err != nil {
			logging.Log().WithError(err).Fatal("Agent run failed")
		}
	},
}

func init() {
	rootCmd.AddCommand(agentCmd)
	agentCmd.Flags().StringVar(&envelopeFormat, "envelope", string(agent.EnvelopeRaw), "Signature envelope format: raw or enveloped")
}
