package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"github.com/mindlog-lab/mindlog/internal/store"
	"github.com/mindlog-lab/mindlog/internal/triage"
)

var (
	chatSessionID string
	chatReferral  string
	chatVerbose   bool
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with the triage engine in the terminal",
	Long: `Start an interactive chat session. Every message is classified, logged
and answered with the response for the session's arm.

Type /done to finish and record whether you would take up the offer of
support, or /quit to leave without a decision.

Example:
  mindlog chat --referral organic`,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVar(&chatSessionID, "session", "", "resume an existing session")
	chatCmd.Flags().StringVar(&chatReferral, "referral", "", "referral source for a new session")
	chatCmd.Flags().BoolVarP(&chatVerbose, "verbose", "v", false, "show sentiment, severity and arm for each turn")
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, args []string) error {
	log, err := newLogger()
	if err != nil {
		return err
	}
	defer log.Sync()

	return withStore(func(st store.Store) error {
		svc, err := buildService(st, log, nil)
		if err != nil {
			return err
		}

		sessionID := chatSessionID
		if sessionID == "" {
			sessionID = triage.NewSessionID()
		}

		c := &chat{
			svc:       svc,
			sessionID: sessionID,
			referral:  chatReferral,
			verbose:   chatVerbose,
			out:       cmd.OutOrStdout(),
			readLine:  promptLine,
			decide:    promptDecision,
		}
		return c.run(cmd.Context())
	})
}

// chat drives one terminal session. Input comes through function fields so
// the loop runs without a terminal.
type chat struct {
	svc       *triage.Service
	sessionID string
	referral  string
	verbose   bool
	out       io.Writer

	readLine func() (string, error)
	decide   func() (bool, error)
}

func (c *chat) run(ctx context.Context) error {
	fmt.Fprintf(c.out, "Session %s\n", c.sessionID)
	fmt.Fprintln(c.out, "How are you feeling today? (/done to finish, /quit to leave)")
	fmt.Fprintln(c.out)

	turns, crisis := 0, false
	for {
		line, err := c.readLine()
		if err != nil {
			if errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrEOF) || errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		switch strings.TrimSpace(line) {
		case "":
			continue
		case "/quit":
			return nil
		case "/done":
			if turns == 0 {
				fmt.Fprintln(c.out, "Nothing to decide yet.")
				return nil
			}
			if crisis {
				fmt.Fprintln(c.out, "Please use the crisis resources above. Take care.")
				return nil
			}
			return c.finish(ctx)
		}

		res, err := c.svc.HandleTurn(ctx, triage.Turn{
			SessionID:      c.sessionID,
			Text:           line,
			ReferralSource: c.referral,
		})
		if err != nil {
			return err
		}
		turns++
		crisis = crisis || res.IsCrisis

		fmt.Fprintln(c.out)
		fmt.Fprintln(c.out, res.Response)
		if c.verbose {
			e := res.Event
			arm := "crisis protocol"
			if !res.IsCrisis {
				arm = fmt.Sprintf("%s (%s)", e.Variant, e.Variant.Label())
			}
			fmt.Fprintf(c.out, "[sentiment %.3f, %s, %s]\n", e.SentimentScore, e.Severity, arm)
		}
		fmt.Fprintln(c.out)
	}
}

func (c *chat) finish(ctx context.Context) error {
	converted, err := c.decide()
	if err != nil {
		if errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrEOF) {
			return nil
		}
		return err
	}

	_, err = c.svc.RecordDecision(ctx, triage.Decision{SessionID: c.sessionID, Converted: converted})
	switch {
	case errors.Is(err, triage.ErrExcludedSession):
		fmt.Fprintln(c.out, "Please use the crisis resources above. Take care.")
		return nil
	case err != nil:
		return err
	}

	if converted {
		fmt.Fprintln(c.out, "Thank you. Someone will be in touch to book your consultation.")
	} else {
		fmt.Fprintln(c.out, "Thank you for talking. You can come back any time.")
	}
	return nil
}

func promptLine() (string, error) {
	prompt := promptui.Prompt{
		Label: "You",
	}
	return prompt.Run()
}

func promptDecision() (bool, error) {
	prompt := promptui.Select{
		Label: "Would you like to book a consultation with a professional?",
		Items: []string{"Yes, book a consultation", "No, thank you"},
		Size:  2,
	}

	idx, _, err := prompt.Run()
	if err != nil {
		return false, err
	}
	return idx == 0, nil
}
