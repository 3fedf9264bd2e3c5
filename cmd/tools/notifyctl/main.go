// cmd/tools/notifyctl/main.go
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	httpclient "hiring-notifications/internal/common/http"
	"hiring-notifications/internal/models"
	"hiring-notifications/internal/notify/placeholder"
	"hiring-notifications/internal/notify/richtext"
	"hiring-notifications/internal/notify/sanitize"
	"hiring-notifications/internal/notify/status"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func newRootCmd(out io.Writer) *cobra.Command {
	var (
		baseURL = envOr("NOTIFY_API_URL", "http://localhost:8080")
		format  = envOr("NOTIFY_OUT", "text")
		timeout = 30 * time.Second
	)

	cl := &client{Out: out}

	root := &cobra.Command{
		Use:           "notifyctl",
		Short:         "Operate the applicant status notification service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			cl.BaseURL = baseURL
			cl.OutFormat = format
			cl.HTTP = httpclient.NewClient(timeout)
		},
	}
	root.SetOut(out)
	root.PersistentFlags().StringVar(&baseURL, "api-url", baseURL, "Base URL of the notification API (env NOTIFY_API_URL)")
	root.PersistentFlags().StringVar(&format, "out", format, "Output format: json|text")
	root.PersistentFlags().DurationVar(&timeout, "timeout", timeout, "Request timeout")

	root.AddCommand(
		newStatusCmd(cl),
		newApplicantCmd(cl, "dispatch", "Queue the status notification for an applicant", "/notifications", http.MethodPost),
		newApplicantCmd(cl, "preview", "Render the notification an applicant would receive", "/preview", http.MethodPost),
		newTokenCmd(out),
		newRenderCmd(out),
	)
	return root
}

type applicantFlags struct {
	org, applicant, status string
}

func (f *applicantFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.org, "org", "", "Organisation id")
	cmd.Flags().StringVar(&f.applicant, "applicant", "", "Applicant id")
	cmd.Flags().StringVar(&f.status, "status", "", "Applicant status (e.g. approved)")
	_ = cmd.MarkFlagRequired("org")
	_ = cmd.MarkFlagRequired("applicant")
	_ = cmd.MarkFlagRequired("status")
}

func newApplicantCmd(cl *client, use, short, suffix, method string) *cobra.Command {
	var f applicantFlags
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cl.call(cmd.Context(), use, method, applicantPath(f.org, f.applicant, suffix),
				map[string]string{"status": f.status})
		},
	}
	f.bind(cmd)
	return cmd
}

func newStatusCmd(cl *client) *cobra.Command {
	statusCmd := &cobra.Command{Use: "status", Short: "Applicant status operations"}

	setCmd := newApplicantCmd(cl, "set", "Change an applicant status (notifies on change)", "/status", http.MethodPut)

	getCmd := &cobra.Command{
		Use:   "get TOKEN",
		Short: "Look up the public status behind a status token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cl.call(cmd.Context(), "status get", http.MethodGet, "/v1/status/"+args[0], nil)
		},
	}

	statusCmd.AddCommand(setCmd, getCmd)
	return statusCmd
}

func newTokenCmd(out io.Writer) *cobra.Command {
	var (
		prefix string
		length int
		count  int
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Generate applicant status tokens",
		RunE: func(cmd *cobra.Command, args []string) error {
			for i := 0; i < count; i++ {
				tok, err := status.GenerateToken(prefix, length)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, tok)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&prefix, "prefix", status.DefaultTokenPrefix, "Token prefix")
	cmd.Flags().IntVar(&length, "length", status.DefaultTokenLength, "Random part length")
	cmd.Flags().IntVarP(&count, "count", "n", 1, "Number of tokens")
	return cmd
}

// newRenderCmd renders a template against an applicant JSON file without a database.
func newRenderCmd(out io.Writer) *cobra.Command {
	var (
		applicantFile string
		subject       string
		body          string
		aliases       map[string]string
	)
	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render a subject/body against an applicant JSON document",
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(applicantFile)
			if err != nil {
				return err
			}
			var applicant models.Applicant
			if err := json.Unmarshal(raw, &applicant); err != nil {
				return fmt.Errorf("parse %s: %w", applicantFile, err)
			}

			msg := render(&applicant, subject, body, aliases)
			p, _ := json.MarshalIndent(msg, "", "  ")
			fmt.Fprintln(out, string(p))
			return nil
		},
	}
	cmd.Flags().StringVar(&applicantFile, "applicant", "", "Path to an applicant JSON document")
	cmd.Flags().StringVar(&subject, "subject", "", "Template subject")
	cmd.Flags().StringVar(&body, "body", "", "Template body (plain text or editor document JSON)")
	cmd.Flags().StringToStringVar(&aliases, "alias", nil, "Placeholder alias key=target (repeatable)")
	_ = cmd.MarkFlagRequired("applicant")
	return cmd
}

func render(applicant *models.Applicant, subject, body string, aliases map[string]string) models.RenderedMessage {
	r := placeholder.New(placeholder.WithAliases(aliases))
	return models.RenderedMessage{
		To:      applicant.Email,
		Subject: sanitize.Text(r.Resolve(subject, applicant)),
		Body:    sanitize.Text(r.Resolve(richtext.Flatten(body), applicant)),
	}
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
