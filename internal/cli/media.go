package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

// NewMediaCmd создаёт группу команд для работы с файлами рассылок.
func NewMediaCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "media",
		Short: "Manage campaign media files",
	}

	cmd.AddCommand(newMediaUploadCmd(clientFn, outputFn))

	return cmd
}

var mediaHeaders = []string{"FILE", "SIZE"}

func newMediaUploadCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "upload PATH",
		Short: "Upload a media file for use in campaigns",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			res, err := client.UploadMedia(args[0])
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("File stored as: %s", res.File))
			out.Print(mediaHeaders, [][]string{{res.File, strconv.FormatInt(res.Size, 10)}}, res)
			return nil
		},
	}
}
