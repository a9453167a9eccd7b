package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"rvkernel/internal/fs/fscore"
)

func statSize(path string) (int64, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return fi.Size(), nil
}

// newInspectCmd prints the decoded BPB fields of a built image, for
// sanity-checking mkfs's own Format output against what a real
// mkfs.fat-produced image would report.
func newInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <image>",
		Short: "Print the BIOS Parameter Block of a FAT32 image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(args[0])
		},
	}
}

func runInspect(imagePath string) error {
	dev, err := openReadOnly(imagePath)
	if err != nil {
		return err
	}
	defer dev.close()

	fs, err := fscore.Mount(dev.dev)
	if err != nil {
		return fmt.Errorf("mount %s: %w", imagePath, err)
	}
	b := fs.BPB
	fmt.Printf("bytes_per_sector:     %d\n", b.BytesPerSector)
	fmt.Printf("sectors_per_cluster:  %d\n", b.SectorsPerCluster)
	fmt.Printf("reserved_sectors:     %d\n", b.ReservedSectorCnt)
	fmt.Printf("num_fats:             %d\n", b.NumFATs)
	fmt.Printf("total_sectors:        %d\n", b.TotalSectors)
	fmt.Printf("fat_size_sectors:     %d\n", b.FATSize)
	fmt.Printf("root_cluster:         %d\n", b.RootCluster)
	fmt.Printf("fsinfo_sector:        %d\n", b.FSInfoSector)
	fmt.Printf("fat1_offset:          %d\n", b.FAT1Offset())
	fmt.Printf("first_data_sector:    %d\n", b.FirstDataSector())
	return nil
}
