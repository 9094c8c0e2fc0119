package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/Sternrassler/edc-client/pkg/edc"
	"github.com/Sternrassler/edc-client/pkg/endpoint"
	"github.com/Sternrassler/edc-client/pkg/models"
)

func newRecordsCommand(a *app) *cobra.Command {
	cmd := newResourceCommand(a, resourceDef[models.Record]{
		use:     "records",
		aliases: []string{"record"},
		short:   "List, validate and create records",
		get: func(s *edc.SDK) *endpoint.Endpoint[models.Record] {
			return s.Records().Endpoint
		},
		header: []string{"ID", "Form", "Subject", "Status", "Modified"},
		row: func(r models.Record) []string {
			return []string{strconv.Itoa(r.RecordID), r.FormKey, r.SubjectKey, r.RecordStatus, formatTime(r.DateModified)}
		},
	})

	cmd.AddCommand(newRecordsValidateCommand(a))
	cmd.AddCommand(newRecordsCreateCommand(a))

	return cmd
}

func newRecordsValidateCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "validate FILE",
		Short: "Validate a JSON array of records against the study schema",
		Long: `Validate a JSON array of records against the study schema without
submitting them. Use "-" to read from standard input.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			studyKey, err := a.studyKey()
			if err != nil {
				return err
			}
			records, err := readRecords(cmd, args[0])
			if err != nil {
				return err
			}

			if err := a.sdk.Schema().ValidateBatch(commandContext(cmd), studyKey, records); err != nil {
				return fmt.Errorf("validation failed: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%d record(s) valid\n", len(records))
			return nil
		},
	}
}

func newRecordsCreateCommand(a *app) *cobra.Command {
	var opts edc.CreateOptions

	cmd := &cobra.Command{
		Use:   "create FILE",
		Short: "Submit a JSON array of records as one batch job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			records, err := readRecords(cmd, args[0])
			if err != nil {
				return err
			}

			job, err := a.sdk.Records().Create(commandContext(cmd), "", records, opts)
			if job != nil {
				if renderErr := renderJob(cmd.OutOrStdout(), a.output, job); renderErr != nil {
					return renderErr
				}
			}
			if err != nil {
				return fmt.Errorf("failed to create records: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&opts.Validate, "validate", true, "validate records before submitting")
	cmd.Flags().BoolVar(&opts.Wait, "wait", false, "wait for the job to finish")

	return cmd
}

func newJobsCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "jobs",
		Aliases: []string{"job"},
		Short:   "Inspect record batch jobs",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "wait BATCH_ID",
		Short: "Poll a job until it finishes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			studyKey, err := a.studyKey()
			if err != nil {
				return err
			}

			job, err := a.sdk.Jobs().Wait(commandContext(cmd), studyKey, args[0])
			if job != nil {
				if renderErr := renderJob(cmd.OutOrStdout(), a.output, job); renderErr != nil {
					return renderErr
				}
			}
			if err != nil {
				return fmt.Errorf("job %s: %w", args[0], err)
			}
			return nil
		},
	})

	return cmd
}

func renderJob(w io.Writer, format string, job *models.Job) error {
	progress := ""
	if job.Progress != nil {
		progress = strconv.Itoa(*job.Progress) + "%"
	}

	view := tableView{
		header: []string{"Property", "Value"},
		rows: [][]string{
			{"Batch ID", job.BatchID},
			{"Job ID", job.JobID},
			{"State", job.State},
			{"Progress", progress},
			{"Created", formatTime(job.DateCreated)},
			{"Finished", formatTime(job.DateFinished)},
			{"Error", job.Error},
		},
	}
	return render(w, format, job, view)
}

// readRecords decodes a JSON array of record objects. Numbers stay
// json.Number so integer checks see the literal value.
func readRecords(cmd *cobra.Command, path string) ([]map[string]any, error) {
	var r io.Reader
	if path == "-" {
		r = cmd.InOrStdin()
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open records file: %w", err)
		}
		defer f.Close()
		r = f
	}

	decoder := json.NewDecoder(r)
	decoder.UseNumber()

	var records []map[string]any
	if err := decoder.Decode(&records); err != nil {
		return nil, fmt.Errorf("decode records: %w", err)
	}
	return records, nil
}
