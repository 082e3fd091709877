package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/pstu-cpl/cpl/internal/auth"
)

func (a *app) loginCmd() *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in with email and password",
		Long: `Sign in with email and password. When --password is omitted it is read
from the first line of standard input.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			pw, err := passwordOrStdin(cmd, password)
			if err != nil {
				return err
			}
			u, err := a.ctrl.Login(cmd.Context(), email, pw)
			if err != nil {
				return describe(err)
			}
			return a.printUser(cmd.OutOrStdout(), "Signed in as", u)
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "account password")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func (a *app) registerCmd() *cobra.Command {
	var (
		in         auth.RegisterInput
		avatarFile string
	)
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create a player account",
		Long: `Create a player account and sign in to it.

Examples:
  cplctl register --name "Asha Rahman" --email asha@pstu.ac.bd \
    --session 2021-22 --player-type Batsman --avatar photo.png`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			pw, err := passwordOrStdin(cmd, in.Password)
			if err != nil {
				return err
			}
			in.Password = pw
			if avatarFile != "" {
				in.Avatar, err = inlineImage(avatarFile)
				if err != nil {
					return err
				}
			}
			u, err := a.ctrl.Register(cmd.Context(), in)
			if err != nil {
				return describe(err)
			}
			return a.printUser(cmd.OutOrStdout(), "Registered", u)
		},
	}
	f := cmd.Flags()
	f.StringVar(&in.Name, "name", "", "full name")
	f.StringVar(&in.Email, "email", "", "account email")
	f.StringVar(&in.Password, "password", "", "account password, at least 6 characters")
	f.StringVar(&avatarFile, "avatar", "", "image file to use as profile photo")
	f.StringVar(&in.Session, "session", "", "academic session, e.g. 2021-22")
	f.StringVar(&in.PlayerType, "player-type", "", "batsman, bowler, all-rounder or wicket-keeper")
	f.StringVar(&in.Semester, "semester", "", "current semester")
	f.StringVar(&in.PaymentMethod, "payment-method", "", "registration fee payment method")
	f.StringVar(&in.PaymentNumber, "payment-number", "", "number the fee was paid from")
	f.StringVar(&in.TransactionID, "transaction-id", "", "fee transaction id")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func (a *app) logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and forget the stored session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.ctrl.Logout(cmd.Context()); err != nil {
				return describe(err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
			return nil
		},
	}
}

func (a *app) whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s := a.ctrl.Snapshot()
			if a.jsonOut {
				return printJSON(cmd.OutOrStdout(), s)
			}
			if s.State != auth.StateAuthenticated || s.User == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "Not signed in")
				return nil
			}
			return a.printUser(cmd.OutOrStdout(), "Signed in as", s.User)
		},
	}
}

func (a *app) updateCmd() *cobra.Command {
	var (
		avatarFile   string
		removeAvatar bool
		values       = map[string]*string{}
	)
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Change profile fields",
		Long: `Change profile fields. Only the flags you pass are changed.

Examples:
  cplctl update --semester 6th
  cplctl update --avatar new-photo.jpg
  cplctl update --remove-avatar`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var patch auth.Patch
			fields := map[string]**string{
				"name":           &patch.Name,
				"session":        &patch.Session,
				"player-type":    &patch.PlayerType,
				"semester":       &patch.Semester,
				"payment-method": &patch.PaymentMethod,
				"payment-number": &patch.PaymentNumber,
				"transaction-id": &patch.TransactionID,
			}
			for flag, dst := range fields {
				if cmd.Flags().Changed(flag) {
					*dst = values[flag]
				}
			}

			switch {
			case avatarFile != "" && removeAvatar:
				return errors.New("--avatar and --remove-avatar cannot be combined")
			case avatarFile != "":
				data, err := inlineImage(avatarFile)
				if err != nil {
					return err
				}
				patch.Avatar = &data
			case removeAvatar:
				empty := ""
				patch.Avatar = &empty
			}

			u, err := a.ctrl.UpdateUser(cmd.Context(), patch)
			if err != nil {
				return describe(err)
			}
			return a.printUser(cmd.OutOrStdout(), "Updated", u)
		},
	}
	for _, flag := range []struct{ name, usage string }{
		{"name", "full name"},
		{"session", "academic session"},
		{"player-type", "playing role"},
		{"semester", "current semester"},
		{"payment-method", "registration fee payment method"},
		{"payment-number", "number the fee was paid from"},
		{"transaction-id", "fee transaction id"},
	} {
		values[flag.name] = cmd.Flags().String(flag.name, "", flag.usage)
	}
	cmd.Flags().StringVar(&avatarFile, "avatar", "", "image file to use as profile photo")
	cmd.Flags().BoolVar(&removeAvatar, "remove-avatar", false, "remove the profile photo")
	return cmd
}

func (a *app) passwdCmd() *cobra.Command {
	var password string
	cmd := &cobra.Command{
		Use:   "passwd",
		Short: "Change the account password",
		RunE: func(cmd *cobra.Command, _ []string) error {
			pw, err := passwordOrStdin(cmd, password)
			if err != nil {
				return err
			}
			if len(pw) < 6 {
				return errors.New("password must be at least 6 characters")
			}
			if err := a.ctrl.ChangePassword(cmd.Context(), pw); err != nil {
				return describe(err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Password changed")
			return nil
		},
	}
	cmd.Flags().StringVar(&password, "password", "", "new password")
	return cmd
}

func (a *app) resetPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset-password <email>",
		Short: "Email a password recovery link",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.ctrl.RequestPasswordReset(cmd.Context(), args[0]); err != nil {
				return describe(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "If %s has an account, a recovery link is on its way\n", args[0])
			return nil
		},
	}
}

func (a *app) printUser(w io.Writer, heading string, u *auth.User) error {
	if a.jsonOut {
		return printJSON(w, u)
	}
	fmt.Fprintf(w, "%s %s <%s>\n", heading, u.Name, u.Email)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	row := func(k, v string) {
		if v != "" {
			fmt.Fprintf(tw, "  %s\t%s\n", k, v)
		}
	}
	row("ID", u.ID)
	row("ROLE", string(u.Role))
	row("SESSION", u.Session)
	row("PLAYER TYPE", u.PlayerType)
	row("SEMESTER", u.Semester)
	if u.Avatar != nil {
		row("AVATAR", *u.Avatar)
	}
	return tw.Flush()
}

func passwordOrStdin(cmd *cobra.Command, flag string) (string, error) {
	if flag != "" {
		return flag, nil
	}
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("reading password: %w", err)
	}
	pw := strings.TrimRight(line, "\r\n")
	if pw == "" {
		return "", errors.New("a password is required: pass --password or pipe it on stdin")
	}
	return pw, nil
}

// describe turns controller failures into messages for the terminal while
// keeping the cause for errors.Is.
func describe(err error) error {
	var msg string
	switch {
	case errors.Is(err, auth.ErrNotAuthenticated):
		msg = "not signed in; run cplctl login first"
	case errors.Is(err, auth.ErrAuthenticationFailed):
		msg = "authentication failed"
	case errors.Is(err, auth.ErrProfileNotFound):
		msg = "this account has no player profile"
	case errors.Is(err, auth.ErrProfileCreationFailed):
		msg = "the account was created but its profile could not be saved"
	case errors.Is(err, auth.ErrAvatarUploadFailed):
		msg = "the photo could not be uploaded"
	case errors.Is(err, auth.ErrRemoteServiceUnavailable):
		msg = "the league service is unreachable; try again later"
	default:
		return err
	}
	return fmt.Errorf("%s: %w", msg, err)
}
