package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

const chatGreeting = "Hello! I'm your AXA insurance advisor. Tell me a little about yourself and what you'd like to protect. Type 'exit' to quit."

func newChatCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive advisory conversation in the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd.Context(), *configPath, os.Stdin, os.Stdout)
		},
	}
}

func runChat(ctx context.Context, configPath string, in io.Reader, out io.Writer) error {
	a, err := newApp(configPath, appOptions{needIndex: true, needLLM: true, needDatabase: true})
	if err != nil {
		return err
	}
	defer a.Close()

	if _, err := a.buildIndex(ctx); err != nil {
		return fmt.Errorf("initial index build failed: %w", err)
	}

	conv := a.newConversation()
	fmt.Fprintln(out, "Bot:", chatGreeting)

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for {
		fmt.Fprint(out, "You: ")
		if !scanner.Scan() {
			break
		}
		input := strings.TrimSpace(scanner.Text())
		if strings.EqualFold(input, "exit") {
			break
		}
		if input == "" {
			continue
		}

		reply, err := conv.Reply(ctx, input)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, "Bot:", reply)
	}
	if err := scanner.Err(); err != nil {
		a.logger.WithError(err).Warn("Failed to read input")
	}

	transcript, err := conv.End()
	if err != nil {
		return err
	}
	if len(transcript.Turns) == 0 {
		fmt.Fprintln(out, "Goodbye!")
		return nil
	}

	if _, err := a.archiver.Archive(ctx, transcript, conv.Profile()); err != nil {
		return fmt.Errorf("failed to archive conversation: %w", err)
	}
	fmt.Fprintf(out, "Goodbye! Conversation %s saved.\n", transcript.ID)
	return nil
}
