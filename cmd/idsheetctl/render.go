package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"idsheet/internal/export"
	"idsheet/internal/render"
	"idsheet/internal/sheet"
	u "idsheet/internal/utils"
)

func newRenderCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render a photo sheet to PDF, HTML or PNG",
		Long: `Render lays out copies of --image on the chosen page and writes the result.

Examples:
  idsheetctl render --image me.jpg --page A4 --quantity 10 -o sheet.pdf
  idsheetctl render --image me.jpg --page Letter --auto-fill --format png`,
		Args: cobra.NoArgs,
		RunE: runRender,
	}
	cmd.Flags().String("image", "", "Photo to place on the sheet (JPEG, PNG, GIF, WebP, BMP, TIFF)")
	cmd.Flags().String("page", "", "Page size: A4 or Letter (default from config)")
	cmd.Flags().String("quantity", "", "Number of photos; clamped to what fits on the page")
	cmd.Flags().Bool("auto-fill", false, "Fill the whole page")
	cmd.Flags().String("format", "pdf", "Output format: pdf, html or png")
	cmd.Flags().String("engine", "", "PDF engine: vector or chrome (default from config)")
	cmd.Flags().StringP("output", "o", "", "Output file (default foto-3x4-sheet.<format>)")
	_ = cmd.MarkFlagRequired("image")
	return cmd
}

func runRender(cmd *cobra.Command, args []string) error {
	cfg := u.GetConfig()

	pageName := mustGetString(cmd, "page")
	if pageName == "" {
		pageName = cfg.Sheet.DefaultPage
	}
	page, err := sheet.ParsePageSize(pageName)
	if err != nil {
		return err
	}
	q, err := sheet.SelectionFor(page, mustGetBool(cmd, "auto-fill"), mustGetString(cmd, "quantity"), cfg.Sheet.DefaultQuantity).Quantity()
	if err != nil {
		return err
	}
	format, err := render.ParseFormat(mustGetString(cmd, "format"))
	if err != nil {
		return err
	}

	exp := export.New(cfg, nil)
	defer exp.Close()

	engine, err := render.ParseEngine(mustGetString(cmd, "engine"), exp.DefaultEngine())
	if err != nil {
		return err
	}

	f, err := os.Open(mustGetString(cmd, "image"))
	if err != nil {
		return fmt.Errorf("%w: %v", sheet.ErrMissingImage, err)
	}
	defer f.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), time.Duration(cfg.PDF.TimeoutSecs)*time.Second)
	defer cancel()

	res, err := exp.Export(ctx, export.Request{
		ClientID: "cli",
		Image:    f,
		Page:     page,
		Quantity: q,
		Format:   format,
		Engine:   engine,
	})
	if err != nil {
		return err
	}

	out := mustGetString(cmd, "output")
	if out == "" {
		out = res.Filename
	}
	if err := os.WriteFile(out, res.Data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", out, err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s: %d photos on %s, %d rows, %.1f DPI\n",
		out, res.Report.Quantity, res.Report.Page, res.Report.Rows, res.Report.EffectiveDPI)
	for _, w := range res.Report.Warnings {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", w)
	}
	return nil
}
