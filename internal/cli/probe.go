package cli

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/vietddude/georetry/internal/control"
	"github.com/vietddude/georetry/internal/core/domain"
	"github.com/vietddude/georetry/internal/core/failure"
)

var (
	probeOp           string
	probeLink         string
	probePartitionKey string
	probeBody         string
	probeByID         bool
)

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Run one request through the retrying client",
	Example: `  georetry probe --op Read --link /dbs/db/colls/orders/docs/1 --partition-key tenant-1
  georetry probe --op Upsert --link /dbs/db/colls/orders/docs --body '{"id":"1"}'`,
	RunE: runProbe,
}

func init() {
	probeCmd.Flags().StringVar(&probeOp, "op", "Read", "operation (Create, Read, Replace, Upsert, Delete, Query, Patch)")
	probeCmd.Flags().StringVar(&probeLink, "link", "", "resource link")
	probeCmd.Flags().StringVar(&probePartitionKey, "partition-key", "", "partition key value")
	probeCmd.Flags().StringVar(&probeBody, "body", "", "JSON request body")
	probeCmd.Flags().BoolVar(&probeByID, "by-id", false, "treat the link as resource ids instead of names")
	_ = probeCmd.MarkFlagRequired("link")
	rootCmd.AddCommand(probeCmd)
}

func runProbe(cmd *cobra.Command, args []string) error {
	op, ok := domain.ParseOperationType(capitalize(probeOp))
	if !ok {
		return fmt.Errorf("unknown operation %q", probeOp)
	}

	ctx := cmd.Context()
	client, err := control.NewClient(ctx, appCfg)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Stop(ctx)
	}()
	if err := client.Start(ctx, false); err != nil {
		return err
	}

	var req *domain.Request
	if probeByID {
		req = domain.NewRequestFromID(op, probeLink, domain.ResourceDocument)
	} else {
		req = domain.NewRequestFromName(op, probeLink, domain.ResourceDocument)
	}
	req.PartitionKey = probePartitionKey
	if probeBody != "" {
		req.Body = []byte(probeBody)
	}

	resp, err := client.Execute(ctx, req)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	for _, s := range client.EndpointStats() {
		_, _ = fmt.Fprintf(w, "ATTEMPTS\t%s\t%d\t%s\n", s.Endpoint, s.Requests, s.Status)
	}
	_, _ = fmt.Fprintf(w, "ACTIVITY\t%s\n", req.ActivityID)
	_, _ = fmt.Fprintf(w, "ENDPOINT\t%s\n", req.Context.LocationEndpoint)
	_, _ = fmt.Fprintf(w, "COLLECTION\t%s\n", req.Context.ResolvedCollectionRID)
	if err != nil {
		if f, ok := failure.As(err); ok {
			_, _ = fmt.Fprintf(w, "STATUS\t%d/%d\n", f.StatusCode, f.SubStatus())
		}
		_, _ = fmt.Fprintf(w, "ERROR\t%v\n", err)
		_ = w.Flush()
		return err
	}
	_, _ = fmt.Fprintf(w, "STATUS\t%d\n", resp.StatusCode)
	_, _ = fmt.Fprintf(w, "SESSION\t%s\n", resp.SessionToken)
	_ = w.Flush()

	_, _ = fmt.Fprintln(os.Stdout, string(resp.Body))
	return nil
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + strings.ToLower(s[1:])
}
