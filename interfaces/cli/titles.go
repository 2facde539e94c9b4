package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func (a *app) newTitlesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "titles",
		Short: "Create and list titles",
	}

	var instructions string
	create := &cobra.Command{
		Use:   "create <title>",
		Short: "Create a title and make it the active one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			title, err := a.client().CreateTitle(cmd.Context(), args[0], instructions)
			if err != nil {
				return err
			}
			if err := a.store().SetLastTitle(title.ID); err != nil {
				return err
			}
			if format := a.v.GetString(keyOutput); format != "table" {
				return writeStructured(cmd.OutOrStdout(), format, title)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created title %s (%s)\n", title.ID, title.Title)
			return nil
		},
	}
	create.Flags().StringVar(&instructions, "instructions", "", "custom instructions for every idea of this title")

	list := &cobra.Command{
		Use:   "list",
		Short: "List your titles, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			titles, err := a.client().ListTitles(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if format := a.v.GetString(keyOutput); format != "table" {
				return writeStructured(out, format, titles)
			}
			last, _ := a.store().LastTitle()
			fmt.Fprintln(out, headerStyle.Render(fmt.Sprintf("  %-36s  %s", "ID", "TITLE")))
			for _, t := range titles {
				marker := " "
				if t.ID == last {
					marker = "*"
				}
				fmt.Fprintf(out, "%s %-36s  %s\n", marker, t.ID, t.Title)
			}
			return nil
		},
	}

	cmd.AddCommand(create, list)
	return cmd
}
