package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

// NewInstanceCmd создаёт группу команд для управления instances.
func NewInstanceCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "instance",
		Short: "Manage messenger instances",
	}

	cmd.AddCommand(
		newInstanceListCmd(clientFn, outputFn),
		newInstanceCreateCmd(clientFn, outputFn),
		newInstanceShowCmd(clientFn, outputFn),
		newInstanceDeleteCmd(clientFn, outputFn),
		newInstanceGroupsCmd(clientFn, outputFn),
		newInstancePairCmd(clientFn, outputFn),
	)

	return cmd
}

func instanceRow(inst *InstanceResponse) []string {
	return []string{
		inst.ID,
		strconv.FormatBool(inst.Active),
		strconv.FormatBool(inst.Connected),
		inst.Phone,
		inst.CreatedAt,
	}
}

var instanceHeaders = []string{"ID", "ACTIVE", "CONNECTED", "PHONE", "CREATED"}

func newInstanceListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all instances",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			instances, err := client.ListInstances()
			if err != nil {
				return err
			}

			rows := make([][]string, len(instances))
			for i := range instances {
				rows[i] = instanceRow(&instances[i])
			}

			out.Print(instanceHeaders, rows, instances)
			return nil
		},
	}
}

func newInstanceCreateCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var pair bool

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Register a new instance",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			inst, err := client.CreateInstance()
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Instance created: %s", inst.ID))
			if pair {
				return pairInstance(client, out, inst.ID)
			}

			out.Print(instanceHeaders, [][]string{instanceRow(inst)}, inst)
			return nil
		},
	}

	cmd.Flags().BoolVar(&pair, "pair", false, "Immediately show pairing QR codes")

	return cmd
}

func newInstanceShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show instance details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			inst, err := client.GetInstance(args[0])
			if err != nil {
				return err
			}

			out.Print(instanceHeaders, [][]string{instanceRow(inst)}, inst)
			return nil
		},
	}
}

func newInstanceDeleteCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Delete an instance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			if err := client.DeleteInstance(args[0]); err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Instance deleted: %s", args[0]))
			return nil
		},
	}
}

func newInstanceGroupsCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "groups ID",
		Short: "List group chats of an instance",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			groups, err := client.ListGroups(args[0])
			if err != nil {
				return err
			}

			headers := []string{"JID", "NAME", "SIZE"}
			rows := make([][]string, len(groups))
			for i, g := range groups {
				rows[i] = []string{g.JID, g.Name, strconv.Itoa(g.Size)}
			}

			out.Print(headers, rows, groups)
			return nil
		},
		Args: cobra.ExactArgs(1),
	}
}

func newInstancePairCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "pair ID",
		Short: "Show pairing QR codes until the instance connects",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return pairInstance(clientFn(), outputFn(), args[0])
		},
	}
}

// pairInstance стримит события instance и рисует QR-коды пейринга,
// пока сессия не подключится или аккаунт не окажется отвязан.
func pairInstance(client *Client, out *Output, instanceID string) error {
	events, closeFn, err := client.StreamEvents(instanceID)
	if err != nil {
		return err
	}
	defer closeFn()

	out.Success("Scan the QR code with the messenger app. Waiting for pairing...")

	for evt := range events {
		switch evt.Kind {
		case "qr":
			if err := out.QR(evt.Code); err != nil {
				return err
			}
		case "connected":
			out.Success("Instance connected")
			return nil
		case "logged_out":
			return fmt.Errorf("account logged out, pairing aborted")
		}
	}

	return fmt.Errorf("event stream closed before pairing completed")
}
