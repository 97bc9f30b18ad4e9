package main

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
)

func (cmd *commandLine) sweep(ctx context.Context) error {
	report, err := cmd.sweeper.Sweep(ctx)
	if err != nil {
		return errors.Wrap(err, "sweeping statuses")
	}
	fmt.Fprintf(cmd.out, "scanned %d items: %d changed, %d failed (%s)\n", report.Scanned, report.Changed, report.Failed, report.Took)
	return nil
}
