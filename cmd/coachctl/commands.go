package main

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"

	"github.com/spf13/cobra"
)

func newChatCommand() *cobra.Command {
	var (
		userID         string
		stageNumber    int
		conversationID string
		provider       string
		start          bool
	)

	cmd := &cobra.Command{
		Use:   "chat [message]",
		Short: "Send a message to the coach",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			message := ""
			if len(args) > 0 {
				message = args[0]
			}
			if start {
				message = "[START_SESSION]"
			}
			if message == "" {
				return fmt.Errorf("provide a message or use --start")
			}

			client := newClient()
			data, err := client.post("/api/v1/chat/message", map[string]interface{}{
				"message":         message,
				"user_id":         userID,
				"stage_number":    stageNumber,
				"conversation_id": conversationID,
				"provider":        provider,
			})
			if err != nil {
				return err
			}
			outputJSON(data)
			return nil
		},
	}

	cmd.Flags().StringVarP(&userID, "user", "u", "", "User ID (required)")
	cmd.Flags().IntVar(&stageNumber, "stage", 1, "Program stage number")
	cmd.Flags().StringVarP(&conversationID, "conversation", "c", "", "Conversation ID (continues an existing conversation)")
	cmd.Flags().StringVarP(&provider, "provider", "p", "", "Preferred LLM provider")
	cmd.Flags().BoolVar(&start, "start", false, "Begin a new session with the opening greeting")
	cmd.MarkFlagRequired("user")

	return cmd
}

func newProgressCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "progress [user-id]",
		Short: "Show a user's stage progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newClient()
			data, err := client.get("/api/v1/session/progress/"+args[0], nil)
			if err != nil {
				return err
			}
			outputJSON(data)
			return nil
		},
	}
	return cmd
}

func newCompleteCommand() *cobra.Command {
	var (
		userID      string
		stageNumber int
	)

	cmd := &cobra.Command{
		Use:   "complete",
		Short: "Mark a program stage as completed",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newClient()
			data, err := client.post("/api/v1/session/complete", map[string]interface{}{
				"user_id":      userID,
				"stage_number": stageNumber,
			})
			if err != nil {
				return err
			}
			outputJSON(data)
			return nil
		},
	}

	cmd.Flags().StringVarP(&userID, "user", "u", "", "User ID (required)")
	cmd.Flags().IntVar(&stageNumber, "stage", 0, "Stage number to complete (required)")
	cmd.MarkFlagRequired("user")
	cmd.MarkFlagRequired("stage")

	return cmd
}

func newConversationCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "conversation",
		Aliases: []string{"conv"},
		Short:   "Manage conversations",
	}

	listCmd := &cobra.Command{
		Use:   "list [user-id]",
		Short: "List a user's conversations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newClient()
			params := url.Values{}
			params.Set("user_id", args[0])
			data, err := client.get("/api/v1/conversations", params)
			if err != nil {
				return err
			}
			outputJSON(data)
			return nil
		},
	}

	showCmd := &cobra.Command{
		Use:   "show [conversation-id]",
		Short: "Show a conversation with its turns",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newClient()
			data, err := client.get("/api/v1/conversations/"+args[0], nil)
			if err != nil {
				return err
			}
			outputJSON(data)
			return nil
		},
	}

	deleteCmd := &cobra.Command{
		Use:   "delete [conversation-id]",
		Short: "Delete a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newClient()
			if _, err := client.delete("/api/v1/conversations/" + args[0]); err != nil {
				return err
			}
			fmt.Printf("Conversation %s deleted\n", args[0])
			return nil
		},
	}

	cmd.AddCommand(listCmd)
	cmd.AddCommand(showCmd)
	cmd.AddCommand(deleteCmd)

	return cmd
}

type seedExample struct {
	ID                  string `json:"id,omitempty"`
	ParticipantResponse string `json:"participant_response"`
	CoachResponse       string `json:"coach_response"`
	Category            string `json:"category"`
	GoalType            string `json:"goal_type"`
}

func newSeedCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed [file.json]",
		Short: "Load coaching examples from a JSON file into the retrieval index",
		Long: `Reads a JSON array of coaching examples and uploads each one.
The server computes embeddings, so the file only needs the text fields:

  [{"participant_response": "...", "coach_response": "...", "category": "...", "goal_type": "..."}]`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read file: %w", err)
			}

			var examples []seedExample
			if err := json.Unmarshal(raw, &examples); err != nil {
				return fmt.Errorf("failed to parse examples: %w", err)
			}

			client := newClient()
			loaded := 0
			for i, ex := range examples {
				if _, err := client.post("/api/v1/examples", ex); err != nil {
					return fmt.Errorf("example %d failed: %w", i, err)
				}
				loaded++
			}

			fmt.Printf("Loaded %d examples\n", loaded)
			return nil
		},
	}
	return cmd
}

func newLogsCommand() *cobra.Command {
	var (
		limit  int
		level  string
		source string
	)

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Fetch recent server logs",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newClient()
			params := url.Values{}
			params.Set("limit", fmt.Sprintf("%d", limit))
			if level != "" {
				params.Set("level", level)
			}
			if source != "" {
				params.Set("source", source)
			}
			data, err := client.get("/api/v1/logs", params)
			if err != nil {
				return err
			}
			outputJSON(data)
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum number of log entries")
	cmd.Flags().StringVarP(&level, "level", "l", "", "Filter by level (debug, info, warning, error)")
	cmd.Flags().StringVar(&source, "source", "", "Filter by source component")

	return cmd
}

func newStatusCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show server health",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newClient()
			data, err := client.get("/api/v1/health", nil)
			if err != nil {
				return err
			}
			outputJSON(data)
			return nil
		},
	}
	return cmd
}
