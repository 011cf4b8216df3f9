package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli/v3"
	"golang.org/x/term"
)

func secretCommand() *cli.Command {
	return &cli.Command{
		Name:  "secret",
		Usage: "manage the OAuth2 client secret",
		Commands: []*cli.Command{
			{
				Name:  "set",
				Usage: "store the client secret read from stdin",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "secret--storage",
						Usage: "secret storage (file|env|keyring)",
					},
				},
				Action: secretSetAction,
			},
		},
	}
}

func secretSetAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadSecretConfig(cmd.String("config"), cmd, os.Environ)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	store, err := cfg.Secret.NewSecretStore()
	if err != nil {
		return fmt.Errorf("failed to create secret store: %w", err)
	}

	root := cmd.Root()
	secret, err := readSecret(root.Reader, root.ErrWriter)
	if err != nil {
		return err
	}

	if err := store.Write(ctx, secret); err != nil {
		return fmt.Errorf("failed to store client secret: %w", err)
	}

	_, _ = fmt.Fprintf(root.ErrWriter, "client secret stored (%s)\n", cfg.Secret.Storage)
	return nil
}

// readSecret reads the secret without echo when r is a terminal and the first
// line of r otherwise.
func readSecret(r io.Reader, prompt io.Writer) (string, error) {
	var secret string
	if f, ok := r.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		_, _ = fmt.Fprint(prompt, "Client secret: ")
		b, err := term.ReadPassword(int(f.Fd()))
		_, _ = fmt.Fprintln(prompt)
		if err != nil {
			return "", fmt.Errorf("failed to read client secret: %w", err)
		}
		secret = string(b)
	} else {
		line, err := bufio.NewReader(r).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", fmt.Errorf("failed to read client secret: %w", err)
		}
		secret = line
	}

	secret = strings.TrimSpace(secret)
	if secret == "" {
		return "", errors.New("client secret cannot be empty")
	}
	return secret, nil
}
