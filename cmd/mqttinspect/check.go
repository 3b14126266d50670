package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nerrad567/mqtt-inspect/internal/message"
	"github.com/nerrad567/mqtt-inspect/internal/rule"
	"github.com/nerrad567/mqtt-inspect/internal/topic"
)

func newCheckCmd() *cobra.Command {
	var topicName, payload string

	cmd := &cobra.Command{
		Use:   "check <rule>",
		Short: "Parse a rule and optionally test it against a message",
		Example: `  mqttinspect check "SELECT * FROM 'sensors/#' WHERE temp > 30"
  mqttinspect check "SELECT temp FROM 'sensors/#'" --topic sensors/kitchen --payload '{"temp": 31}'`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			def, err := rule.Parse(strings.Join(args, " "))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "rule:   %s\n", def)
			fmt.Fprintf(out, "select: %s\n", strings.Join(def.Select, ", "))
			fmt.Fprintf(out, "from:   %s\n", def.From)
			if def.Where != nil {
				fmt.Fprintf(out, "where:  %s\n", def.Where)
			}

			if topicName == "" {
				return nil
			}

			msg := message.FromMQTT(message.TypeSimulated, "check", topicName, []byte(payload), 0, false)
			matched := def.Matches(msg, topic.Default)
			fmt.Fprintf(out, "match:  %t\n", matched)
			if matched {
				data, err := json.Marshal(def.Project(msg))
				if err != nil {
					return fmt.Errorf("encoding projection: %w", err)
				}
				fmt.Fprintf(out, "output: %s\n", data)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&topicName, "topic", "", "topic of a test message")
	cmd.Flags().StringVar(&payload, "payload", "", "payload of a test message")
	return cmd
}
