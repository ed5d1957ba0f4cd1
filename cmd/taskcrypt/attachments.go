package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/TheMichaelB/taskcrypt/internal/client"
	"github.com/TheMichaelB/taskcrypt/internal/models"
	"github.com/TheMichaelB/taskcrypt/internal/storage"
)

var attachmentsCmd = &cobra.Command{
	Use:   "attachments",
	Short: "List, upload and download task attachments",
}

var attachmentsListCmd = &cobra.Command{
	Use:   "list <task-gid>",
	Short: "List the attachments of a task",
	Args:  cobra.ExactArgs(1),
	RunE:  runAttachmentsList,
}

var attachmentsUploadCmd = &cobra.Command{
	Use:   "upload <task-gid> <file>",
	Short: "Attach a file to a task",
	Long: `Upload attaches a local file. With a master password the file name and
the content are encrypted before they are sent.`,
	Args: cobra.ExactArgs(2),
	RunE: runAttachmentsUpload,
}

var attachmentsDownloadCmd = &cobra.Command{
	Use:   "download <task-gid> [attachment-gid...]",
	Short: "Download attachments into the download directory",
	Long: `Download saves the given attachments of a task, or all of them, under
storage.download_dir. Encrypted files are decrypted; files that are not
encrypted, or cannot be decrypted, are saved as downloaded.

Conflict strategies: rename (default), overwrite, skip, error.`,
	Example: `  taskcrypt attachments download 1209876543210
  taskcrypt attachments download 1209876543210 1205555555555 --conflict overwrite`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAttachmentsDownload,
}

var downloadConflict string

func init() {
	rootCmd.AddCommand(attachmentsCmd)
	attachmentsCmd.AddCommand(attachmentsListCmd, attachmentsUploadCmd, attachmentsDownloadCmd)

	attachmentsDownloadCmd.Flags().StringVar(&downloadConflict, "conflict", "rename",
		"What to do when a file already exists")
}

func runAttachmentsList(cmd *cobra.Command, args []string) error {
	if err := requireToken(); err != nil {
		return err
	}

	atts, err := apiClient.Tasks.Attachments(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	if jsonOutput {
		printJSON(atts)
		return nil
	}

	if len(atts) == 0 {
		printInfo("No attachments")
		return nil
	}

	rows := make([][]string, len(atts))
	for i, a := range atts {
		created := "-"
		if !a.CreatedAt.IsZero() {
			created = a.CreatedAt.Local().Format("2006-01-02 15:04")
		}
		rows[i] = []string{a.GID, a.Name, created}
	}
	printTable([]string{"gid", "name", "created"}, rows)
	return nil
}

func runAttachmentsUpload(cmd *cobra.Command, args []string) error {
	if err := requireToken(); err != nil {
		return err
	}

	path := args[1]
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat file: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", path)
	}
	if info.Size() > cfg.Storage.MaxFileSize {
		return fmt.Errorf("%w: %s (max: %s)", storage.ErrTooLarge,
			formatBytes(info.Size()), formatBytes(cfg.Storage.MaxFileSize))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	name := filepath.Base(path)
	mime := models.DetectMimeType(name, data)

	att, err := apiClient.Tasks.UploadAttachment(cmd.Context(), args[0], name, mime, data)
	if err != nil {
		return err
	}

	if jsonOutput {
		printJSON(map[string]interface{}{
			"attachment": att,
			"size":       len(data),
			"mime":       mime,
			"encrypted":  apiClient.Crypto.HasPassword(),
		})
		return nil
	}

	printSuccess("Uploaded %s (%s, %s)", att.Name, formatBytes(int64(len(data))), mime)
	return nil
}

func runAttachmentsDownload(cmd *cobra.Command, args []string) error {
	if err := requireToken(); err != nil {
		return err
	}
	ctx := cmd.Context()

	strategy, err := storage.ParseConflictStrategy(downloadConflict)
	if err != nil {
		return err
	}

	atts, err := apiClient.Tasks.Attachments(ctx, args[0])
	if err != nil {
		return err
	}
	atts = selectAttachments(atts, args[1:])
	if len(atts) == 0 {
		printInfo("No attachments to download")
		return nil
	}

	var (
		results []*client.SavedAttachment
		failed  int
	)
	for _, att := range atts {
		saved, err := apiClient.SaveAttachment(ctx, att, strategy)
		if err != nil {
			failed++
			if !jsonOutput {
				printWarning("%s: %v", att.Name, err)
			}
			continue
		}
		results = append(results, saved)

		if jsonOutput {
			continue
		}
		switch {
		case saved.Skipped:
			printInfo("Kept existing %s", saved.Path)
		case saved.Decrypted:
			printSuccess("Saved %s (%s, decrypted)", saved.Path, formatBytes(int64(saved.Size)))
		default:
			printSuccess("Saved %s (%s)", saved.Path, formatBytes(int64(saved.Size)))
		}
	}

	if jsonOutput {
		printJSON(map[string]interface{}{
			"directory": apiClient.Files.BaseDir(),
			"files":     results,
			"failed":    failed,
		})
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d attachments failed", failed, len(atts))
	}
	return nil
}

// selectAttachments keeps the attachments named by ids, or all when ids is
// empty.
func selectAttachments(atts []models.Attachment, ids []string) []models.Attachment {
	if len(ids) == 0 {
		return atts
	}

	wanted := make(map[string]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}

	var out []models.Attachment
	for _, a := range atts {
		if wanted[a.GID] {
			out = append(out, a)
		}
	}
	return out
}
