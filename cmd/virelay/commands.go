package main

import (
	"fmt"
	"image/png"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/robert-malhotra/virelay/hdf5"
	"github.com/robert-malhotra/virelay/heatmap"
	"github.com/robert-malhotra/virelay/internal/container"
	"github.com/robert-malhotra/virelay/internal/demo"
	"github.com/robert-malhotra/virelay/project"
	"github.com/robert-malhotra/virelay/workspace"
)

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list <manifest>...",
		Short: "List the projects declared by manifests",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := workspace.Load(args, workspace.WithLogger(logger))
			if err != nil {
				return err
			}
			defer w.Close()

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tUUID\tNAME\tMODEL\tDATASET")
			for _, s := range w.List() {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", s.ID, s.UUID, s.Name, s.Model, orDash(s.DatasetName))
			}
			return tw.Flush()
		},
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func openProject(path string) (*project.Project, error) {
	p, err := project.Load(path, project.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	if err := p.Open(); err != nil {
		return nil, err
	}
	return p, nil
}

func newInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <manifest>",
		Short: "Show what a project contains",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := openProject(args[0])
			if err != nil {
				return err
			}
			defer p.Close()
			return inspect(cmd.OutOrStdout(), p)
		},
	}
}

func inspect(out io.Writer, p *project.Project) error {
	fmt.Fprintf(out, "project:      %s\n", p.Name())
	fmt.Fprintf(out, "model:        %s\n", p.Model())
	fmt.Fprintf(out, "labels:       %d\n", p.LabelMap().Len())
	if p.HasDataset() {
		n, err := p.SampleCount()
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "dataset:      %s (%d samples)\n", p.DatasetName(), n)
	}
	if p.HasAttributions() {
		indices, err := p.AttributionIndices()
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "attributions: %s/%s (%d)\n", p.AttributionMethod(), orDash(p.AttributionStrategy()), len(indices))
	}
	for _, method := range p.AnalysisMethods() {
		cats, err := p.Categories(method)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "analysis:     %s (%d categories)\n", method, len(cats))
		for _, c := range cats {
			clus, err := p.Clusterings(method, c.Name)
			if err != nil {
				return err
			}
			embs, err := p.Embeddings(method, c.Name)
			if err != nil {
				return err
			}
			name := c.Name
			if c.DisplayName != "" {
				name += " (" + c.DisplayName + ")"
			}
			fmt.Fprintf(out, "  %s: clusterings [%s] embeddings [%s]\n", name, strings.Join(clus, " "), strings.Join(embs, " "))
		}
	}
	return nil
}

func newRenderCmd() *cobra.Command {
	var (
		index    int
		mode     string
		colorMap string
		out      string
	)
	cmd := &cobra.Command{
		Use:   "render <manifest>",
		Short: "Render the attribution of one sample as a PNG heatmap",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := heatmap.ParseMode(mode)
			if err != nil {
				return err
			}
			cm, err := heatmap.ParseColorMap(colorMap)
			if err != nil {
				return err
			}
			p, err := openProject(args[0])
			if err != nil {
				return err
			}
			defer p.Close()

			img, err := render(p, index, m, cm)
			if err != nil {
				return err
			}
			return writePNG(out, img)
		},
	}
	cmd.Flags().IntVar(&index, "index", 0, "sample index")
	cmd.Flags().StringVar(&mode, "mode", string(heatmap.Overlay), "raw, overlay or attribution")
	cmd.Flags().StringVar(&colorMap, "color-map", string(heatmap.BlackFireRed), "colour map")
	cmd.Flags().StringVarP(&out, "out", "o", "heatmap.png", "output PNG file")
	return cmd
}

func render(p *project.Project, index int, mode heatmap.Mode, cm heatmap.ColorMap) (*heatmap.Image, error) {
	var sample *heatmap.Image
	if mode != heatmap.AttributionOnly {
		s, err := p.Sample(index)
		if err != nil {
			return nil, err
		}
		if sample, err = heatmap.FromPixels(s.Pixels()); err != nil {
			return nil, err
		}
	}
	var rel heatmap.Relevance
	if mode != heatmap.Raw {
		a, err := p.Attribution(index)
		if err != nil {
			return nil, err
		}
		if rel, err = heatmap.Decompose(a.Data); err != nil {
			return nil, err
		}
	}
	return heatmap.Render(rel, mode, cm, sample)
}

func writePNG(path string, img *heatmap.Image) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return png.Encode(f, img.RGBA())
}

func newWalkCmd() *cobra.Command {
	var attrs bool
	cmd := &cobra.Command{
		Use:   "walk <file.h5>",
		Short: "Print the group and dataset tree of a container",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := container.Open("walk", args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			if attrs {
				return walkAttrs(cmd.OutOrStdout(), f)
			}
			return walk(cmd.OutOrStdout(), f)
		},
	}
	cmd.Flags().BoolVar(&attrs, "attrs", false, "print attribute values instead of the tree")
	return cmd
}

func walk(out io.Writer, f *container.File) error {
	fmt.Fprintf(out, "%s (superblock v%d)\n", f.Path(), f.Version())
	return f.Walk(func(path string, obj any, err error) error {
		depth := strings.Count(strings.Trim(path, "/"), "/")
		if path != "/" {
			depth++
		}
		indent := strings.Repeat("  ", depth)
		if err != nil {
			fmt.Fprintf(out, "%s%s: %v\n", indent, path, err)
			return nil
		}
		switch o := obj.(type) {
		case *hdf5.Group:
			fmt.Fprintf(out, "%sgroup %s attrs=%v\n", indent, path, o.Attrs())
		case *hdf5.Dataset:
			fmt.Fprintf(out, "%sdataset %s attrs=%v\n", indent, container.Describe(o), o.Attrs())
		}
		return nil
	})
}

func walkAttrs(out io.Writer, f *container.File) error {
	return f.WalkAttrs(func(info hdf5.AttrInfo) error {
		if info.Err != nil {
			fmt.Fprintf(out, "%s: %v\n", info.Path, info.Err)
			return nil
		}
		fmt.Fprintf(out, "%s = %v\n", info.Path, info.Value)
		return nil
	})
}

func newMkdemoCmd() *cobra.Command {
	var opts demo.Options
	var size int
	cmd := &cobra.Command{
		Use:   "mkdemo <dir>",
		Short: "Write a small self-consistent demo project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Width, opts.Height = size, size
			l, err := demo.Write(args[0], opts)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), l.Manifest)
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.Name, "name", "demo", "project name")
	cmd.Flags().IntVar(&opts.Samples, "samples", 6, "number of samples")
	cmd.Flags().IntVar(&size, "size", 8, "sample width and height")
	cmd.Flags().BoolVar(&opts.Directory, "directory", false, "store samples as PNG files")
	return cmd
}
