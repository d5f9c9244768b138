package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/andresuchdata/cloudpath/internal/plan"
	"github.com/andresuchdata/cloudpath/internal/service"
	"github.com/andresuchdata/cloudpath/internal/storage"
	"github.com/urfave/cli/v2"
)

// withSession wires the backend and journal around a command.
func withSession(cmd *cli.Command) *cli.Command {
	cmd.Before = openSession
	cmd.After = closeSession
	return cmd
}

func dryRunFlag() *cli.BoolFlag {
	return &cli.BoolFlag{
		Name:    "dry-run",
		Aliases: []string{"n"},
		Usage:   "Print the plan without copying or deleting anything",
	}
}

func commands() []*cli.Command {
	return []*cli.Command{
		withSession(&cli.Command{
			Name:      "ls",
			Usage:     "List objects under a prefix",
			ArgsUsage: "[PREFIX]",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "contains", Usage: "Keep keys containing this substring"},
				&cli.StringFlag{Name: "regex", Usage: "Keep keys matching this regular expression"},
				&cli.StringFlag{Name: "glob", Usage: "Keep keys matching this glob (** crosses folders)"},
			},
			Action: listFiles,
		}),
		withSession(&cli.Command{
			Name:      "folders",
			Usage:     "List folders directly under a prefix",
			ArgsUsage: "[PREFIX]",
			Action:    listFolders,
		}),
		withSession(&cli.Command{
			Name:      "exists",
			Usage:     "Report whether an object exists",
			ArgsUsage: "KEY",
			Action:    exists,
		}),
		withSession(&cli.Command{
			Name:      "copy",
			Aliases:   []string{"cp"},
			Usage:     "Copy one object; a DST ending in / keeps the source name",
			ArgsUsage: "SRC DST",
			Action:    copyFile,
		}),
		withSession(&cli.Command{
			Name:      "push",
			Usage:     "Upload a local file",
			ArgsUsage: "LOCAL DST",
			Action:    push,
		}),
		withSession(&cli.Command{
			Name:      "pull",
			Usage:     "Download an object to a local path",
			ArgsUsage: "SRC [LOCAL]",
			Action:    pull,
		}),
		withSession(&cli.Command{
			Name:      "cat",
			Usage:     "Write an object to stdout",
			ArgsUsage: "SRC",
			Action:    cat,
		}),
		withSession(&cli.Command{
			Name:      "rename",
			Usage:     "Replace FROM with TO in every key under PATH",
			ArgsUsage: "PATH FROM TO",
			Flags: []cli.Flag{
				dryRunFlag(),
				&cli.BoolFlag{Name: "prefix", Aliases: []string{"p"}, Usage: "Treat PATH as a prefix even without a trailing /"},
			},
			Action: rename,
		}),
		withSession(&cli.Command{
			Name:      "mv",
			Aliases:   []string{"move"},
			Usage:     "Move an object or a whole prefix",
			ArgsUsage: "SRC DST",
			Flags:     []cli.Flag{dryRunFlag()},
			Action:    move,
		}),
		withSession(&cli.Command{
			Name:      "rm",
			Usage:     "Delete objects",
			ArgsUsage: "KEY...",
			Action:    remove,
		}),
		{
			Name:  "tags",
			Usage: "Read or replace object tags",
			Subcommands: []*cli.Command{
				withSession(&cli.Command{
					Name:      "get",
					ArgsUsage: "KEY",
					Action:    getTags,
				}),
				withSession(&cli.Command{
					Name:      "set",
					Usage:     "Replace the tags of KEY",
					ArgsUsage: "KEY NAME=VALUE...",
					Action:    setTags,
				}),
			},
		},
		{
			Name:  "plans",
			Usage: "Inspect and resume journaled bulk plans",
			Subcommands: []*cli.Command{
				withSession(&cli.Command{
					Name:  "list",
					Flags: []cli.Flag{&cli.IntFlag{Name: "limit", Value: 20}},
					Action: func(c *cli.Context) error {
						s := fromContext(c)
						plans, err := s.svc.Plans(c.Context, c.Int("limit"))
						if err != nil {
							return err
						}
						return plan.RenderSummaries(os.Stdout, plans, s.format)
					},
				}),
				withSession(&cli.Command{
					Name:      "show",
					ArgsUsage: "ID",
					Action: func(c *cli.Context) error {
						s := fromContext(c)
						id, err := arg(c, 0, "ID")
						if err != nil {
							return err
						}
						p, err := s.svc.Plan(c.Context, id)
						if err != nil {
							return err
						}
						return plan.Render(os.Stdout, p, s.format)
					},
				}),
				withSession(&cli.Command{
					Name:      "resume",
					ArgsUsage: "ID",
					Action: func(c *cli.Context) error {
						s := fromContext(c)
						id, err := arg(c, 0, "ID")
						if err != nil {
							return err
						}
						p, err := s.svc.ResumePlan(c.Context, id)
						return renderPlan(s, p, err)
					},
				}),
			},
		},
	}
}

func arg(c *cli.Context, i int, name string) (string, error) {
	if c.NArg() <= i {
		return "", fmt.Errorf("missing %s argument", name)
	}
	return c.Args().Get(i), nil
}

// renderPlan prints p even when execution failed partway.
func renderPlan(s *session, p *plan.Plan, err error) error {
	if p != nil {
		if rerr := plan.Render(os.Stdout, p, s.format); rerr != nil && err == nil {
			err = rerr
		}
	}
	return err
}

func listFiles(c *cli.Context) error {
	s := fromContext(c)
	match, err := service.Filter{
		Contains: c.String("contains"),
		Regex:    c.String("regex"),
		Glob:     c.String("glob"),
	}.Predicate()
	if err != nil {
		return err
	}
	objs, err := s.svc.ListFiles(c.Context, c.Args().First(), match)
	if err != nil {
		return err
	}
	return plan.RenderObjects(os.Stdout, objs, s.format)
}

func listFolders(c *cli.Context) error {
	s := fromContext(c)
	objs, err := s.svc.ListFolders(c.Context, c.Args().First())
	if err != nil {
		return err
	}
	return plan.RenderObjects(os.Stdout, objs, s.format)
}

func exists(c *cli.Context) error {
	key, err := arg(c, 0, "KEY")
	if err != nil {
		return err
	}
	ok, err := fromContext(c).svc.FileExists(c.Context, key)
	if err != nil {
		return err
	}
	fmt.Println(ok)
	return nil
}

func copyFile(c *cli.Context) error {
	src, err := arg(c, 0, "SRC")
	if err != nil {
		return err
	}
	dst, err := arg(c, 1, "DST")
	if err != nil {
		return err
	}
	s := fromContext(c)
	obj, err := s.svc.CopyFile(c.Context, src, dst)
	if err != nil || obj == nil {
		return err
	}
	return plan.RenderObjects(os.Stdout, []storage.RemoteObject{*obj}, s.format)
}

func push(c *cli.Context) error {
	local, err := arg(c, 0, "LOCAL")
	if err != nil {
		return err
	}
	dst, err := arg(c, 1, "DST")
	if err != nil {
		return err
	}
	loc, err := fromContext(c).svc.PushFile(c.Context, local, dst)
	if err != nil {
		return err
	}
	fmt.Println(loc)
	return nil
}

func pull(c *cli.Context) error {
	src, err := arg(c, 0, "SRC")
	if err != nil {
		return err
	}
	local := c.Args().Get(1)
	if local == "" {
		local = "."
	}
	out, err := fromContext(c).svc.PullFile(c.Context, src, local)
	if err != nil {
		return err
	}
	if out != "" {
		fmt.Println(out)
	}
	return nil
}

func cat(c *cli.Context) error {
	src, err := arg(c, 0, "SRC")
	if err != nil {
		return err
	}
	_, err = fromContext(c).svc.StreamFile(c.Context, src, os.Stdout)
	return err
}

func rename(c *cli.Context) error {
	if c.NArg() < 3 {
		return fmt.Errorf("rename needs PATH FROM TO")
	}
	path := c.Args().Get(0)
	if c.Bool("prefix") && !storage.HasTrailingSeparator(path) {
		path += "/"
	}
	s := fromContext(c)
	p, err := s.svc.RenameFile(c.Context, path, c.Args().Get(1), c.Args().Get(2), c.Bool("dry-run"))
	return renderPlan(s, p, err)
}

func move(c *cli.Context) error {
	src, err := arg(c, 0, "SRC")
	if err != nil {
		return err
	}
	dst, err := arg(c, 1, "DST")
	if err != nil {
		return err
	}
	s := fromContext(c)
	p, err := s.svc.MoveFile(c.Context, src, dst, c.Bool("dry-run"))
	return renderPlan(s, p, err)
}

func remove(c *cli.Context) error {
	if c.NArg() == 0 {
		return fmt.Errorf("missing KEY argument")
	}
	return fromContext(c).svc.DeleteFiles(c.Context, c.Args().Slice()...)
}

func getTags(c *cli.Context) error {
	key, err := arg(c, 0, "KEY")
	if err != nil {
		return err
	}
	tags, err := fromContext(c).svc.GetTags(c.Context, key)
	if err != nil {
		return err
	}
	for _, t := range tags {
		fmt.Printf("%s=%s\n", t.Key, t.Value)
	}
	return nil
}

func setTags(c *cli.Context) error {
	key, err := arg(c, 0, "KEY")
	if err != nil {
		return err
	}
	tags, err := parseTags(c.Args().Tail())
	if err != nil {
		return err
	}
	return fromContext(c).svc.AddTags(c.Context, key, tags)
}

func parseTags(args []string) (storage.TagSet, error) {
	set := make(storage.TagSet, 0, len(args))
	for _, a := range args {
		k, v, ok := strings.Cut(a, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("tag %q is not NAME=VALUE", a)
		}
		set = append(set, storage.Tag{Key: k, Value: v})
	}
	return set, nil
}
