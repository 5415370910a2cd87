package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"idsheet/internal/sheet"
	u "idsheet/internal/utils"
)

func newPlanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Preview how photos are arranged on a page",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := u.GetConfig()
			pageName := mustGetString(cmd, "page")
			if pageName == "" {
				pageName = cfg.Sheet.DefaultPage
			}
			page, err := sheet.ParsePageSize(pageName)
			if err != nil {
				return err
			}
			sel := sheet.SelectionFor(page, mustGetBool(cmd, "auto-fill"), mustGetString(cmd, "quantity"), cfg.Sheet.DefaultQuantity)
			return printPlan(cmd.OutOrStdout(), sel, mustGetBool(cmd, "cells"))
		},
	}
	cmd.Flags().String("page", "", "Page size: A4 or Letter (default from config)")
	cmd.Flags().String("quantity", "", "Number of photos; clamped to what fits on the page")
	cmd.Flags().Bool("auto-fill", false, "Fill the whole page")
	cmd.Flags().Bool("cells", false, "List the position of every photo in millimeters")
	return cmd
}

// printPlan draws every slot of the page, filled ones as [#].
func printPlan(w io.Writer, sel sheet.Selection, listCells bool) error {
	q, err := sel.Quantity()
	if err != nil {
		return err
	}
	max, _ := sel.Max()
	d, _ := sel.Page.Dimensions()
	cols := sheet.Columns(d, sheet.PhotoCell, sheet.DefaultLayout)

	fmt.Fprintf(w, "%s (%g x %g mm): %d of %d photos, %d per row\n", sel.Page, d.WidthMM, d.HeightMM, q, max, cols)

	slots := sheet.Flow(d, sheet.PhotoCell, sheet.DefaultLayout, max)
	var row []string
	for i, s := range slots {
		if i > 0 && s.Y != slots[i-1].Y {
			fmt.Fprintln(w, strings.Join(row, " "))
			row = row[:0]
		}
		mark := "[ ]"
		if i < q {
			mark = "[#]"
		}
		row = append(row, mark)
	}
	if len(row) > 0 {
		fmt.Fprintln(w, strings.Join(row, " "))
	}

	if listCells {
		for i, c := range slots[:q] {
			fmt.Fprintf(w, "%3d  x=%-6g y=%-6g %gx%g mm\n", i+1, c.X, c.Y, c.W, c.H)
		}
	}
	return nil
}
