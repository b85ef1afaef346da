package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/user/wschat/internal/auth"
	"github.com/user/wschat/internal/types"
)

var (
	authEmail        string
	authPasswordFile string
	authDisplayName  string
)

func init() {
	for _, c := range []*cobra.Command{loginCmd, signupCmd} {
		c.Flags().StringVar(&authEmail, "email", "", "account email")
		c.Flags().StringVar(&authPasswordFile, "password-file", "", "read the password from this file (\"-\" prompts)")
	}
	signupCmd.Flags().StringVar(&authDisplayName, "name", "", "display name shown to other members")
	rootCmd.AddCommand(loginCmd, signupCmd, logoutCmd, whoamiCmd)
}

// readPassword reads a password from a file, or from the terminal with echo
// disabled.
func readPassword(passwordFile string) (string, error) {
	if passwordFile != "" && passwordFile != "-" {
		data, err := os.ReadFile(passwordFile)
		if err != nil {
			return "", fmt.Errorf("read password file: %w", err)
		}
		pw := strings.TrimRight(string(data), "\r\n")
		if pw == "" {
			return "", fmt.Errorf("password file %s is empty", passwordFile)
		}
		return pw, nil
	}

	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("no terminal available for password prompt (use --password-file)")
	}
	fmt.Fprint(os.Stderr, "Password: ")
	pw, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(pw), nil
}

func newAuthProvider() (*auth.Provider, error) {
	cfg := loadConfig()
	if cfg.Auth.APIKey == "" {
		return nil, errors.New("auth.api_key is not set (wschat config set auth.api_key <key>)")
	}
	return auth.New(cfg.Auth.APIKey, ""), nil
}

// credentials fills in missing email and password interactively.
func credentials() (string, string, error) {
	email := authEmail
	if email == "" {
		email = prompt(bufio.NewScanner(os.Stdin), "Email", "")
	}
	if email == "" {
		return "", "", errors.New("email is required")
	}
	pw, err := readPassword(authPasswordFile)
	if err != nil {
		return "", "", err
	}
	return email, pw, nil
}

func remember(who types.Identity) error {
	cfg := loadConfig()
	p, err := openPrefs(cfg)
	if err != nil {
		return err
	}
	if err := p.SaveIdentity(who); err != nil {
		return fmt.Errorf("remember identity: %w", err)
	}
	return nil
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in with email and password",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		provider, err := newAuthProvider()
		if err != nil {
			return err
		}
		email, pw, err := credentials()
		if err != nil {
			return err
		}

		ctx, cancel := signalContext()
		defer cancel()
		sess, err := provider.SignIn(ctx, email, pw)
		if err != nil {
			if errors.Is(err, auth.ErrInvalidCredentials) {
				return errors.New("sign in failed: invalid email or password")
			}
			return fmt.Errorf("sign in: %w", err)
		}
		if err := remember(sess.Identity); err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "Signed in as %s (%s)\n", sess.Identity.DisplayName, sess.Identity.Email)
		return nil
	},
}

var signupCmd = &cobra.Command{
	Use:   "signup",
	Short: "Create an account and sign in",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		provider, err := newAuthProvider()
		if err != nil {
			return err
		}
		email, pw, err := credentials()
		if err != nil {
			return err
		}
		name := authDisplayName
		if name == "" {
			name = prompt(bufio.NewScanner(os.Stdin), "Display name", email)
		}

		ctx, cancel := signalContext()
		defer cancel()
		sess, err := provider.SignUp(ctx, email, pw, name)
		if err != nil {
			return fmt.Errorf("sign up: %w", err)
		}
		if err := createProfile(ctx, sess.Identity); err != nil {
			return err
		}
		if err := remember(sess.Identity); err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "Account created. Signed in as %s\n", sess.Identity.DisplayName)
		return nil
	},
}

func createProfile(ctx context.Context, who types.Identity) error {
	cfg := loadConfig()
	backend, err := openBackend(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer backend.Close()
	profile := &types.UserProfile{ID: who.ID, DisplayName: who.DisplayName, Email: who.Email}
	if err := backend.CreateProfile(ctx, profile); err != nil {
		return fmt.Errorf("create profile: %w", err)
	}
	return nil
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the signed-in identity",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		p, err := openPrefs(cfg)
		if err != nil {
			return err
		}
		if err := p.ClearIdentity(); err != nil {
			return fmt.Errorf("clear identity: %w", err)
		}
		fmt.Println("Signed out.")
		return nil
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the signed-in identity",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		p, err := openPrefs(cfg)
		if err != nil {
			return err
		}
		who := p.Identity()
		if who == nil {
			fmt.Println("Not signed in. Chat sessions use a throwaway demo identity.")
			return nil
		}
		fmt.Fprintf(os.Stdout, "%s\n  id:    %s\n  email: %s\n", who.DisplayName, who.ID, who.Email)
		return nil
	},
}
