package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/taskhive/taskhive/internal/engine"
	"github.com/taskhive/taskhive/internal/ui"
)

var loginCmd = &cobra.Command{
	Use:     "login [email]",
	GroupID: "account",
	Short:   "Sign in and pick an active workspace",
	Args:    cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(func(ctx context.Context, e *engine.Engine) error {
			email := ""
			if len(args) > 0 {
				email = args[0]
			}
			if email == "" {
				var err error
				email, err = promptLine("Email: ")
				if err != nil {
					return err
				}
			}

			password, err := promptPassword("Password: ")
			if err != nil {
				return err
			}

			sess, err := e.Session.Login(ctx, email, password)
			if err != nil {
				return err
			}

			fmt.Println(ui.RenderPass("Logged in as " + sess.Email))
			if sess.ActiveWorkspaceID == "" {
				fmt.Println("No approved workspace yet. Run 'th workspace join <id>' to request one.")
				return nil
			}
			fmt.Printf("Active workspace: %s\n", ui.RenderAccent(sess.ActiveWorkspaceID))
			return nil
		})
	},
}

var signupCmd = &cobra.Command{
	Use:     "signup <email> <name>",
	GroupID: "account",
	Short:   "Create an account",
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(func(ctx context.Context, e *engine.Engine) error {
			password, err := promptPassword("Password: ")
			if err != nil {
				return err
			}
			confirm, err := promptPassword("Confirm password: ")
			if err != nil {
				return err
			}
			if password != confirm {
				return fmt.Errorf("passwords do not match")
			}

			if _, err := e.Session.SignUp(ctx, args[0], password, args[1]); err != nil {
				return err
			}
			fmt.Println(ui.RenderPass("Account created. Run 'th login' to sign in."))
			return nil
		})
	},
}

var logoutCmd = &cobra.Command{
	Use:     "logout",
	GroupID: "account",
	Short:   "Sign out and wipe cached data",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(func(ctx context.Context, e *engine.Engine) error {
			if err := e.Session.Logout(ctx); err != nil {
				return err
			}
			if err := e.Store.WipeUserData(ctx); err != nil {
				return fmt.Errorf("failed to wipe cached data: %w", err)
			}
			fmt.Println(ui.RenderPass("Logged out, local cache wiped."))
			return nil
		})
	},
}

func promptLine(prompt string) (string, error) {
	fmt.Print(prompt)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}

func promptPassword(prompt string) (string, error) {
	fmt.Print(prompt)
	raw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return string(raw), nil
}

func init() {
	rootCmd.AddCommand(loginCmd, signupCmd, logoutCmd)
}
