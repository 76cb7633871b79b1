package main

import (
	"flag"
	"fmt"
	"os"

	"vanish/internal/client"
)

const usage = `usage: vanish <command> [flags]

commands:
  upload   -server URL -user NAME -pass PASSWORD [-expire PRESET] [-file-pass PW] [-one-time] <path>
  info     -server URL <uuid>
  download -server URL [-file-pass PW] [-out PATH] <uuid>
  delete   -server URL -user NAME -pass PASSWORD <uuid>

expire presets: 1m, 1h, 24h, 7d, permanent (default 24h)
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "upload":
		err = runUpload(os.Args[2:])
	case "info":
		err = runInfo(os.Args[2:])
	case "download":
		err = runDownload(os.Args[2:])
	case "delete":
		err = runDelete(os.Args[2:])
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loginClient(server, user, pass string) (*client.Client, error) {
	c, err := client.New(server)
	if err != nil {
		return nil, err
	}
	if err := c.Login(user, pass); err != nil {
		return nil, err
	}
	return c, nil
}

func runUpload(args []string) error {
	fs := flag.NewFlagSet("upload", flag.ExitOnError)
	server := fs.String("server", "http://localhost:5000", "server base URL")
	user := fs.String("user", "", "account username")
	pass := fs.String("pass", "", "account password")
	expire := fs.String("expire", "", "expiration preset")
	filePass := fs.String("file-pass", "", "protect the file with a password")
	oneTime := fs.Bool("one-time", false, "delete after first download")
	fs.Parse(args)

	if fs.NArg() != 1 {
		return fmt.Errorf("upload needs exactly one file path")
	}

	c, err := loginClient(*server, *user, *pass)
	if err != nil {
		return err
	}

	result, err := c.Upload(fs.Arg(0), client.UploadOptions{
		Expiration: *expire,
		Password:   *filePass,
		OneTime:    *oneTime,
	})
	if err != nil {
		return err
	}

	fmt.Printf("uploaded %s (%d bytes)\n", result.Name, result.Size)
	fmt.Printf("share link: %s/api/files/%s\n", *server, result.UUID)
	if result.ExpiresAt != "" {
		fmt.Printf("expires at: %s\n", result.ExpiresAt)
	}
	return nil
}

func runInfo(args []string) error {
	fs := flag.NewFlagSet("info", flag.ExitOnError)
	server := fs.String("server", "http://localhost:5000", "server base URL")
	fs.Parse(args)

	if fs.NArg() != 1 {
		return fmt.Errorf("info needs exactly one uuid")
	}

	c, err := client.New(*server)
	if err != nil {
		return err
	}
	info, err := c.Info(fs.Arg(0))
	if err != nil {
		return err
	}

	fmt.Printf("%s  %d bytes  password=%v  one-time=%v\n",
		info.Name, info.Size, info.HasPassword, info.OneTime)
	return nil
}

func runDownload(args []string) error {
	fs := flag.NewFlagSet("download", flag.ExitOnError)
	server := fs.String("server", "http://localhost:5000", "server base URL")
	filePass := fs.String("file-pass", "", "file password")
	out := fs.String("out", "", "output path (defaults to the file's name)")
	fs.Parse(args)

	if fs.NArg() != 1 {
		return fmt.Errorf("download needs exactly one uuid")
	}
	uuid := fs.Arg(0)

	c, err := client.New(*server)
	if err != nil {
		return err
	}

	outPath := *out
	if outPath == "" {
		info, err := c.Info(uuid)
		if err != nil {
			return err
		}
		outPath = info.Name
	}

	n, err := c.Download(uuid, *filePass, outPath)
	if err != nil {
		return err
	}
	fmt.Printf("downloaded %d bytes to %s\n", n, outPath)
	return nil
}

func runDelete(args []string) error {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	server := fs.String("server", "http://localhost:5000", "server base URL")
	user := fs.String("user", "", "account username")
	pass := fs.String("pass", "", "account password")
	fs.Parse(args)

	if fs.NArg() != 1 {
		return fmt.Errorf("delete needs exactly one uuid")
	}

	c, err := loginClient(*server, *user, *pass)
	if err != nil {
		return err
	}
	if err := c.Delete(fs.Arg(0)); err != nil {
		return err
	}
	fmt.Println("file deleted")
	return nil
}
