package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"moodspend/internal/core"
)

func recurringCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "recurring",
		Aliases: []string{"rec"},
		Short:   "Manage recurring transactions",
	}

	cmd.AddCommand(recurringAddCmd())
	cmd.AddCommand(recurringListCmd())
	cmd.AddCommand(recurringUpdateCmd())
	cmd.AddCommand(recurringDeactivateCmd())
	cmd.AddCommand(recurringDeleteCmd())

	return cmd
}

// recurrenceFlags holds the raw flag values shared by add and update.
type recurrenceFlags struct {
	frequency string
	amount    string
	emotion   int64
	category  int64
	note      string
	start     string
	end       string
	owner     int64
	kind      string
}

func (f *recurrenceFlags) register(fs *pflag.FlagSet) {
	fs.StringVar(&f.frequency, "frequency", "monthly", "daily, weekly, monthly or yearly")
	fs.StringVar(&f.amount, "amount", "", "amount in decimal form, e.g. 12.50")
	fs.Int64Var(&f.emotion, "emotion", 0, "emotion id")
	fs.Int64Var(&f.category, "category", 0, "category id")
	fs.StringVar(&f.note, "note", "", "note copied onto every instance")
	fs.StringVar(&f.start, "start", "", "first due date (YYYY-MM-DD)")
	fs.StringVar(&f.end, "end", "", "last possible due date, inclusive (YYYY-MM-DD)")
	fs.Int64Var(&f.owner, "owner", 1, "owner id")
	fs.StringVar(&f.kind, "kind", string(core.KindExpense), "expense or saving")
}

func (f *recurrenceFlags) definition() (core.RecurrenceDefinition, error) {
	amount, err := core.ParseMoney(f.amount)
	if err != nil {
		return core.RecurrenceDefinition{}, fmt.Errorf("invalid amount: %w", err)
	}
	start, err := core.ParseDate(f.start)
	if err != nil {
		return core.RecurrenceDefinition{}, err
	}
	end, err := core.ParseDate(f.end)
	if err != nil {
		return core.RecurrenceDefinition{}, err
	}

	re := core.NewRecurrence(core.Frequency(f.frequency), amount, f.emotion, f.category, f.note,
		start, end, f.owner, core.TransactionKind(f.kind))
	if err := re.Validate(); err != nil {
		return core.RecurrenceDefinition{}, err
	}
	return re, nil
}

// update builds a partial update from the flags the user actually set.
func (f *recurrenceFlags) update(fs *pflag.FlagSet) (core.RecurrenceUpdate, error) {
	var u core.RecurrenceUpdate

	if fs.Changed("frequency") {
		freq := core.Frequency(f.frequency)
		if err := freq.Validate(); err != nil {
			return u, err
		}
		u.Frequency = &freq
	}
	if fs.Changed("amount") {
		amount, err := core.ParseMoney(f.amount)
		if err != nil {
			return u, fmt.Errorf("invalid amount: %w", err)
		}
		u.Amount = &amount
	}
	if fs.Changed("emotion") {
		u.EmotionID = &f.emotion
	}
	if fs.Changed("category") {
		u.CategoryID = &f.category
	}
	if fs.Changed("note") {
		u.Note = &f.note
	}
	if fs.Changed("start") {
		start, err := core.ParseDate(f.start)
		if err != nil {
			return u, err
		}
		u.StartDate = &start
	}
	if fs.Changed("end") {
		// An empty value clears the end date.
		end, err := core.ParseDate(f.end)
		if err != nil {
			return u, err
		}
		u.EndDate = &end
	}
	if fs.Changed("kind") {
		kind := core.TransactionKind(f.kind)
		if err := kind.Validate(); err != nil {
			return u, err
		}
		u.Kind = &kind
	}

	return u, nil
}

func recurringAddCmd() *cobra.Command {
	var flags recurrenceFlags

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create a recurring transaction",
		Example: `  moodspend recurring add --frequency monthly --amount 49.99 \
    --emotion 3 --category 7 --note Gym --start 2024-01-31`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			re, err := flags.definition()
			if err != nil {
				return err
			}

			result, err := openBackend(cmd.Context())
			if err != nil {
				return err
			}
			defer closeBackend(result)

			id, err := result.Recurrences.Create(cmd.Context(), re)
			if err != nil {
				return fmt.Errorf("failed to create recurrence: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Created recurrence %d (%s, %s from %s)\n",
				id, re.Frequency, re.Amount, re.StartDate)
			return nil
		},
	}

	flags.register(cmd.Flags())
	_ = cmd.MarkFlagRequired("amount")
	_ = cmd.MarkFlagRequired("emotion")
	_ = cmd.MarkFlagRequired("category")
	_ = cmd.MarkFlagRequired("start")

	return cmd
}

func recurringListCmd() *cobra.Command {
	var activeOnly bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recurring transactions, newest start date first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			result, err := openBackend(ctx)
			if err != nil {
				return err
			}
			defer closeBackend(result)

			var list []core.RecurrenceDefinition
			if activeOnly {
				list, err = result.Recurrences.ListActive(ctx)
			} else {
				list, err = result.Recurrences.ListAll(ctx)
			}
			if err != nil {
				return fmt.Errorf("failed to list recurrences: %w", err)
			}

			if len(list) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No recurring transactions found. Use 'moodspend recurring add' to create one.")
				return nil
			}
			return writeRecurrences(cmd.OutOrStdout(), list)
		},
	}

	cmd.Flags().BoolVar(&activeOnly, "active", false, "only show active recurrences")

	return cmd
}

func writeRecurrences(out io.Writer, list []core.RecurrenceDefinition) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tFREQUENCY\tAMOUNT\tKIND\tSTART\tEND\tACTIVE\tNOTE")
	for _, re := range list {
		end := re.EndDate.String()
		if end == "" {
			end = "-"
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%t\t%s\n",
			re.ID, re.Frequency, re.Amount, re.Kind, re.StartDate, end, re.Active, re.Note)
	}
	return w.Flush()
}

func recurringUpdateCmd() *cobra.Command {
	var flags recurrenceFlags

	cmd := &cobra.Command{
		Use:   "update ID",
		Short: "Change fields of a recurring transaction",
		Long: `Only the flags given on the command line are changed. Pass --end "" to
remove the end date.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			u, err := flags.update(cmd.Flags())
			if err != nil {
				return err
			}
			if u.IsEmpty() {
				return fmt.Errorf("nothing to update: pass at least one field flag")
			}

			result, err := openBackend(cmd.Context())
			if err != nil {
				return err
			}
			defer closeBackend(result)

			if err := result.Recurrences.Update(cmd.Context(), id, u); err != nil {
				return fmt.Errorf("failed to update recurrence %d: %w", id, err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Updated recurrence %d\n", id)
			return nil
		},
	}

	flags.register(cmd.Flags())

	return cmd
}

func recurringDeactivateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "deactivate ID",
		Short: "Stop materializing a recurring transaction, keeping its history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			result, err := openBackend(cmd.Context())
			if err != nil {
				return err
			}
			defer closeBackend(result)

			if err := result.Recurrences.Update(cmd.Context(), id, core.Deactivate()); err != nil {
				return fmt.Errorf("failed to deactivate recurrence %d: %w", id, err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Deactivated recurrence %d\n", id)
			return nil
		},
	}
}

func recurringDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a recurring transaction definition",
		Long: `Delete the definition. Transactions already materialized from it are kept
and keep their recurrence id.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			result, err := openBackend(cmd.Context())
			if err != nil {
				return err
			}
			defer closeBackend(result)

			if err := result.Recurrences.Delete(cmd.Context(), id); err != nil {
				return fmt.Errorf("failed to delete recurrence %d: %w", id, err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Deleted recurrence %d\n", id)
			return nil
		},
	}
}
