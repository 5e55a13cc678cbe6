package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

// NewCampaignCmd создаёт группу команд для управления кампаниями.
func NewCampaignCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "campaign",
		Short: "Manage broadcast campaigns",
	}

	cmd.AddCommand(
		newCampaignListCmd(clientFn, outputFn),
		newCampaignCreateCmd(clientFn, outputFn),
		newCampaignShowCmd(clientFn, outputFn),
		newCampaignStartCmd(clientFn, outputFn),
		newCampaignStopCmd(clientFn, outputFn),
		newCampaignDeleteCmd(clientFn, outputFn),
	)

	return cmd
}

var campaignHeaders = []string{"ID", "TARGET", "ACTIVE", "INSTANCES", "MESSAGES", "CREATED"}

func campaignRow(c *CampaignResponse) []string {
	return []string{
		c.ID,
		c.TargetChatID,
		strconv.FormatBool(c.Active),
		strconv.Itoa(len(c.InstanceIDs)),
		strconv.Itoa(len(c.Messages)),
		c.CreatedAt,
	}
}

func newCampaignListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all campaigns",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			campaigns, err := client.ListCampaigns()
			if err != nil {
				return err
			}

			rows := make([][]string, len(campaigns))
			for i := range campaigns {
				rows[i] = campaignRow(&campaigns[i])
			}

			out.Print(campaignHeaders, rows, campaigns)
			return nil
		},
	}
}

func newCampaignCreateCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var (
		target       string
		text         string
		messagesFile string
		instances    []string
		delay        []int
		messageDelay []int
		typing       []int
		blockAdmins  bool
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a campaign and start broadcasting",
		Long: `Create a campaign and start broadcasting.

The message template comes either from --text (a single text message)
or from --messages-file, a JSON array of message specs:

  [{"type": "text", "text": "hello"},
   {"type": "image", "file": "/data/promo.jpg", "text": "caption"},
   {"type": "audio", "file": "/data/note.ogg", "ptt": true}]`,
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			messages, err := loadMessages(text, messagesFile)
			if err != nil {
				return err
			}

			req := CreateCampaignRequest{
				TargetChatID: target,
				Messages:     messages,
				BlockAdmins:  blockAdmins,
				InstanceIDs:  instances,
			}
			if req.MinDelaySec, req.MaxDelaySec, err = splitBounds("delay", delay); err != nil {
				return err
			}
			if req.MinMessageDelaySec, req.MaxMessageDelaySec, err = splitBounds("message-delay", messageDelay); err != nil {
				return err
			}
			if req.MinTypingSec, req.MaxTypingSec, err = splitBounds("typing", typing); err != nil {
				return err
			}

			campaign, err := client.CreateCampaign(req)
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Campaign created: %s", campaign.ID))
			out.Print(campaignHeaders, [][]string{campaignRow(campaign)}, campaign)
			return nil
		},
	}

	cmd.Flags().StringVar(&target, "target", "", "Target group chat JID (required)")
	cmd.Flags().StringVar(&text, "text", "", "Single text message to send")
	cmd.Flags().StringVar(&messagesFile, "messages-file", "", "JSON file with the message template")
	cmd.Flags().StringSliceVar(&instances, "instance", nil, "Instance ID to send from (repeatable, required)")
	cmd.Flags().IntSliceVar(&delay, "delay", []int{30, 90}, "Delay bounds between recipients, seconds (min,max)")
	cmd.Flags().IntSliceVar(&messageDelay, "message-delay", []int{3, 10}, "Delay bounds between messages, seconds (min,max)")
	cmd.Flags().IntSliceVar(&typing, "typing", []int{2, 6}, "Typing simulation bounds, seconds (min,max)")
	cmd.Flags().BoolVar(&blockAdmins, "block-admins", false, "Exclude chat admins from recipients")
	cmd.MarkFlagRequired("target")
	cmd.MarkFlagRequired("instance")

	return cmd
}

// loadMessages строит шаблон рассылки из флагов --text / --messages-file.
func loadMessages(text, messagesFile string) ([]MessageSpec, error) {
	switch {
	case text != "" && messagesFile != "":
		return nil, fmt.Errorf("--text and --messages-file are mutually exclusive")
	case text != "":
		return []MessageSpec{{Type: "text", Text: text}}, nil
	case messagesFile != "":
		data, err := os.ReadFile(messagesFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read messages file: %w", err)
		}
		var messages []MessageSpec
		if err := json.Unmarshal(data, &messages); err != nil {
			return nil, fmt.Errorf("invalid messages file: %w", err)
		}
		return messages, nil
	default:
		return nil, fmt.Errorf("either --text or --messages-file is required")
	}
}

// splitBounds разбирает пару (min,max) из слайс-флага.
func splitBounds(flag string, bounds []int) (int, int, error) {
	if len(bounds) != 2 {
		return 0, 0, fmt.Errorf("--%s expects min,max", flag)
	}
	return bounds[0], bounds[1], nil
}

func newCampaignShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show campaign details and progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			campaign, err := client.GetCampaign(args[0])
			if err != nil {
				return err
			}

			progress := "-"
			if p := campaign.Progress; p != nil {
				progress = fmt.Sprintf("%d/%d sent, %d failed", p.Sent, p.Total, p.Failed)
			}

			headers := []string{"ID", "TARGET", "ACTIVE", "INSTANCES", "PROGRESS", "CREATED"}
			row := []string{
				campaign.ID,
				campaign.TargetChatID,
				strconv.FormatBool(campaign.Active),
				strings.Join(campaign.InstanceIDs, ","),
				progress,
				campaign.CreatedAt,
			}

			out.Print(headers, [][]string{row}, campaign)
			return nil
		},
	}
}

func newCampaignStartCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var instances []string

	cmd := &cobra.Command{
		Use:   "start ID",
		Short: "Resume a stopped campaign",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := clientFn().StartCampaign(args[0], instances); err != nil {
				return err
			}
			outputFn().Success(fmt.Sprintf("Campaign started: %s", args[0]))
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&instances, "instance", nil, "Replace the campaign's instance set (repeatable)")
	return cmd
}

func newCampaignStopCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "stop ID",
		Short: "Stop a running campaign",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := clientFn().StopCampaign(args[0]); err != nil {
				return err
			}
			outputFn().Success(fmt.Sprintf("Campaign stopped: %s", args[0]))
			return nil
		},
	}
}

func newCampaignDeleteCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a campaign and its jobs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := clientFn().DeleteCampaign(args[0]); err != nil {
				return err
			}
			outputFn().Success(fmt.Sprintf("Campaign deleted: %s", args[0]))
			return nil
		},
	}
}
