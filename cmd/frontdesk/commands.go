package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kalambet/frontdesk/internal/api"
	"github.com/kalambet/frontdesk/internal/config"
	"github.com/kalambet/frontdesk/internal/kb"
	"github.com/kalambet/frontdesk/internal/livekit"
	"github.com/kalambet/frontdesk/internal/storage"
)

// --- ask ---

var askCmd = &cobra.Command{
	Use:   "ask <utterance>",
	Short: "Send a customer utterance through the answer-or-escalate pipeline",
	Long: `Send a customer utterance through the answer-or-escalate pipeline.

Examples:
  frontdesk ask "What are your opening hours?"
  frontdesk ask --conversation conv_1a2b3c "Do you take walk-ins?"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		convID, _ := cmd.Flags().GetString("conversation")
		utterance := strings.Join(args, " ")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		if convID == "" {
			c, err := startConversation(ctx, client, "")
			if err != nil {
				return err
			}
			convID = c.ID
			printStatus("Conversation", "%s", convID)
		}

		out, err := ask(ctx, client, convID, utterance)
		if err != nil {
			return err
		}
		fmt.Println(out.Reply)
		if out.OnHold && out.HelpRequest != nil {
			printWarning("Escalated as %s; resolve with: frontdesk resolve %s <answer>", out.HelpRequest.ID, out.HelpRequest.ID)
		} else {
			printStatus("Source", "%s", out.Source)
		}
		return nil
	},
}

func init() {
	askCmd.Flags().String("conversation", "", "conversation id (a new one is started when empty)")
}

func startConversation(ctx context.Context, c *apiClient, title string) (storage.Conversation, error) {
	resp, err := c.post(ctx, "/conversations", map[string]string{"title": title})
	if err != nil {
		return storage.Conversation{}, err
	}
	var conv storage.Conversation
	err = decodeJSON(resp, &conv)
	return conv, err
}

func ask(ctx context.Context, c *apiClient, convID, utterance string) (api.AnswerResponse, error) {
	resp, err := c.post(ctx, "/answer-or-escalate", api.AnswerRequest{ConversationID: convID, Utterance: utterance})
	if err != nil {
		return api.AnswerResponse{}, err
	}
	var out api.AnswerResponse
	err = decodeJSON(resp, &out)
	return out, err
}

// --- resolve ---

var resolveCmd = &cobra.Command{
	Use:   "resolve <help-request-id> <answer>",
	Short: "Answer a pending help request and teach the knowledge base",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		supervisor, _ := cmd.Flags().GetString("supervisor")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		out, err := resolve(cmd.Context(), client, args[0], strings.Join(args[1:], " "), supervisor)
		if isConflict(err) {
			printWarning("%s was already resolved; nothing changed", args[0])
			return err
		}
		if err != nil {
			return err
		}

		switch {
		case out.Learned.Created:
			printSuccess("Resolved %s; learned as new entry %s", args[0], out.Learned.EntryID)
		case out.Learned.Updated:
			printSuccess("Resolved %s; updated entry %s (score %.2f)", args[0], out.Learned.EntryID, out.Learned.Score)
		default:
			printSuccess("Resolved %s", args[0])
		}
		fmt.Println(out.Reply)
		return nil
	},
}

func init() {
	resolveCmd.Flags().String("supervisor", "", "supervisor id (server default when empty)")
}

func resolve(ctx context.Context, c *apiClient, id, answer, supervisor string) (api.ResolveResponse, error) {
	resp, err := c.post(ctx, "/help-requests/"+url.PathEscape(id)+"/resolve", api.ResolveRequest{Answer: answer, SupervisorID: supervisor})
	if err != nil {
		return api.ResolveResponse{}, err
	}
	var out api.ResolveResponse
	err = decodeJSON(resp, &out)
	return out, err
}

// --- conversations ---

var conversationsCmd = &cobra.Command{
	Use:   "conversations",
	Short: "List and manage conversations",
}

var conversationsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List conversations, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/conversations", nil)
		if err != nil {
			return err
		}
		var out struct {
			Conversations []storage.Conversation `json:"conversations"`
		}
		if err := decodeJSON(resp, &out); err != nil {
			return err
		}

		if len(out.Conversations) == 0 {
			fmt.Println("No conversations found.")
			return nil
		}
		for _, c := range out.Conversations {
			writeConversationLine(os.Stdout, c)
		}
		return nil
	},
}

var conversationsStartCmd = &cobra.Command{
	Use:   "start [title]",
	Short: "Start a new conversation",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		c, err := startConversation(cmd.Context(), client, strings.Join(args, " "))
		if err != nil {
			return err
		}
		printSuccess("Started %s", c.ID)
		return nil
	},
}

var conversationsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a single conversation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/conversations/"+url.PathEscape(args[0]), nil)
		if err != nil {
			return err
		}
		var c storage.Conversation
		if err := decodeJSON(resp, &c); err != nil {
			return err
		}
		return printJSON(os.Stdout, c)
	},
}

var conversationsRenameCmd = &cobra.Command{
	Use:   "rename <id> <title>",
	Short: "Rename a conversation",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		title := strings.Join(args[1:], " ")
		resp, err := client.patch(cmd.Context(), "/conversations/"+url.PathEscape(args[0]), map[string]string{"title": title})
		if err != nil {
			return err
		}
		var c storage.Conversation
		if err := decodeJSON(resp, &c); err != nil {
			return err
		}
		printSuccess("Renamed %s to %q", c.ID, c.Title)
		return nil
	},
}

var conversationsEndCmd = &cobra.Command{
	Use:   "end <id>",
	Short: "Mark a conversation as ended",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.patch(cmd.Context(), "/conversations/"+url.PathEscape(args[0])+"/end", nil)
		if err != nil {
			return err
		}
		var c storage.Conversation
		if err := decodeJSON(resp, &c); err != nil {
			return err
		}
		printSuccess("Ended %s", c.ID)
		return nil
	},
}

func init() {
	conversationsCmd.AddCommand(conversationsListCmd)
	conversationsCmd.AddCommand(conversationsStartCmd)
	conversationsCmd.AddCommand(conversationsShowCmd)
	conversationsCmd.AddCommand(conversationsRenameCmd)
	conversationsCmd.AddCommand(conversationsEndCmd)
}

// --- transcript ---

var transcriptCmd = &cobra.Command{
	Use:   "transcript <conversation-id>",
	Short: "Print the customer-visible transcript of a conversation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		since, _ := cmd.Flags().GetString("since")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		msgs, err := fetchTranscript(cmd.Context(), client, args[0], since)
		if err != nil {
			return err
		}
		if len(msgs) == 0 {
			fmt.Println("No messages.")
			return nil
		}
		for _, m := range msgs {
			writeMessageLine(os.Stdout, m)
		}
		return nil
	},
}

func init() {
	transcriptCmd.Flags().String("since", "", "only messages after this RFC 3339 timestamp")
}

func fetchTranscript(ctx context.Context, c *apiClient, convID, since string) ([]storage.Message, error) {
	path := "/transcripts/" + url.PathEscape(convID)
	var q url.Values
	if since != "" {
		path = "/conversations/" + url.PathEscape(convID) + "/messages"
		q = url.Values{"since": {since}}
	}
	resp, err := c.get(ctx, path, q)
	if err != nil {
		return nil, err
	}
	var out api.TranscriptResponse
	if err := decodeJSON(resp, &out); err != nil {
		return nil, err
	}
	return out.Messages, nil
}

// --- help-requests ---

var helpRequestsCmd = &cobra.Command{
	Use:     "help-requests",
	Aliases: []string{"hr"},
	Short:   "Inspect escalated help requests",
}

var helpRequestsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List help requests, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		status, _ := cmd.Flags().GetString("status")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		list, err := fetchHelpRequests(cmd.Context(), client, status)
		if err != nil {
			return err
		}
		if len(list) == 0 {
			fmt.Println("No help requests found.")
			return nil
		}
		for _, h := range list {
			writeHelpRequestLine(os.Stdout, h)
		}
		return nil
	},
}

var helpRequestsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a help request and its supervisor audit trail",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		id := url.PathEscape(args[0])

		resp, err := client.get(ctx, "/help-requests/"+id, nil)
		if err != nil {
			return err
		}
		var h storage.HelpRequest
		if err := decodeJSON(resp, &h); err != nil {
			return err
		}

		resp, err = client.get(ctx, "/help-requests/"+id+"/audit", nil)
		if err != nil {
			return err
		}
		var audit struct {
			Messages []storage.Message `json:"messages"`
		}
		if err := decodeJSON(resp, &audit); err != nil {
			return err
		}

		return printJSON(os.Stdout, map[string]any{"help_request": h, "audit": audit.Messages})
	},
}

func init() {
	helpRequestsListCmd.Flags().String("status", "", "filter by status (pending or resolved)")
	helpRequestsCmd.AddCommand(helpRequestsListCmd)
	helpRequestsCmd.AddCommand(helpRequestsShowCmd)
}

func fetchHelpRequests(ctx context.Context, c *apiClient, status string) ([]storage.HelpRequest, error) {
	var q url.Values
	if status != "" {
		q = url.Values{"status": {status}}
	}
	resp, err := c.get(ctx, "/help-requests", q)
	if err != nil {
		return nil, err
	}
	var out struct {
		HelpRequests []storage.HelpRequest `json:"help_requests"`
	}
	if err := decodeJSON(resp, &out); err != nil {
		return nil, err
	}
	return out.HelpRequests, nil
}

// --- kb ---

var kbCmd = &cobra.Command{
	Use:   "kb [query]",
	Short: "List the knowledge base, or search it when a query is given",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		minScore, _ := cmd.Flags().GetFloat64("min-score")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		if len(args) == 0 {
			entries, err := fetchKB(ctx, client)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Println("Knowledge base is empty.")
				return nil
			}
			for _, e := range entries {
				writeEntry(os.Stdout, e, -1)
			}
			return nil
		}

		q := url.Values{"q": {strings.Join(args, " ")}, "k": {strconv.Itoa(limit)}}
		if cmd.Flags().Changed("min-score") {
			q.Set("min_score", strconv.FormatFloat(minScore, 'f', -1, 64))
		}
		resp, err := client.get(ctx, "/kb", q)
		if err != nil {
			return err
		}
		var out struct {
			Matches []kb.Match `json:"matches"`
		}
		if err := decodeJSON(resp, &out); err != nil {
			return err
		}
		if len(out.Matches) == 0 {
			fmt.Println("No results found.")
			return nil
		}
		for _, m := range out.Matches {
			writeEntry(os.Stdout, m.Entry, m.Score)
		}
		return nil
	},
}

func init() {
	kbCmd.Flags().Int("limit", 5, "maximum number of results")
	kbCmd.Flags().Float64("min-score", kb.ListingThreshold, "minimum similarity score")
}

func fetchKB(ctx context.Context, c *apiClient) ([]storage.KnowledgeEntry, error) {
	resp, err := c.get(ctx, "/kb", nil)
	if err != nil {
		return nil, err
	}
	var out struct {
		KB []storage.KnowledgeEntry `json:"kb"`
	}
	if err := decodeJSON(resp, &out); err != nil {
		return nil, err
	}
	return out.KB, nil
}

// --- admin ---

var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Seed or reset stored data",
}

var adminSeedCmd = &cobra.Command{
	Use:   "seed <file>",
	Short: "Replace the knowledge base from a YAML or JSON file",
	Long: `Replace the knowledge base from a YAML or JSON file holding a list of
{question, answer} items (or a mapping with an "items" list).

Examples:
  frontdesk admin seed ./kb.yaml
  frontdesk admin seed --all ./kb.json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		all, _ := cmd.Flags().GetBool("all")

		items, err := kb.LoadSeedFile(args[0])
		if err != nil {
			return err
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		n, err := seed(cmd.Context(), client, items, all)
		if err != nil {
			return err
		}
		printSuccess("Seeded %d knowledge base entries", n)
		return nil
	},
}

var adminResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete all conversations, help requests and knowledge",
	RunE: func(cmd *cobra.Command, args []string) error {
		confirm, _ := cmd.Flags().GetBool("confirm")
		if !confirm {
			printWarning("This will delete ALL stored data. Use --confirm to proceed.")
			return nil
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/admin/reset", nil)
		if err != nil {
			return err
		}
		var out map[string]any
		if err := decodeJSON(resp, &out); err != nil {
			return err
		}
		printSuccess("All data reset")
		return nil
	},
}

func init() {
	adminSeedCmd.Flags().Bool("all", false, "also clear conversations and help requests")
	adminResetCmd.Flags().Bool("confirm", false, "confirm data reset")
	adminCmd.AddCommand(adminSeedCmd)
	adminCmd.AddCommand(adminResetCmd)
}

func seed(ctx context.Context, c *apiClient, items []kb.SeedItem, all bool) (int, error) {
	resp, err := c.post(ctx, "/admin/seed-kb", api.SeedRequest{Items: items, All: all})
	if err != nil {
		return 0, err
	}
	var out struct {
		Count int `json:"kb_count"`
	}
	if err := decodeJSON(resp, &out); err != nil {
		return 0, err
	}
	return out.Count, nil
}

// --- token ---

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a realtime session token",
	RunE: func(cmd *cobra.Command, args []string) error {
		identity, _ := cmd.Flags().GetString("identity")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		var q url.Values
		if identity != "" {
			q = url.Values{"identity": {identity}}
		}
		resp, err := client.get(cmd.Context(), "/livekit/token", q)
		if err != nil {
			return err
		}
		var tok livekit.Token
		if err := decodeJSON(resp, &tok); err != nil {
			return err
		}
		return printJSON(os.Stdout, tok)
	},
}

func init() {
	tokenCmd.Flags().String("identity", "", "participant identity (random when empty)")
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		for _, k := range config.ShowAll(cfg) {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

var configUnsetCmd = &cobra.Command{
	Use:   "unset <key>",
	Short: "Remove a configuration value so its default applies",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.UnsetKey(args[0]); err != nil {
			return err
		}
		printSuccess("Unset %s", args[0])
		return nil
	},
}

var configKeysCmd = &cobra.Command{
	Use:   "keys",
	Short: "List settable configuration keys",
	Run: func(cmd *cobra.Command, args []string) {
		for _, k := range config.ValidKeys() {
			fmt.Println(k)
		}
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configUnsetCmd)
	configCmd.AddCommand(configKeysCmd)
}
