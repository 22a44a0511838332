package ipfs

import (
	"flag"

	"github.com/Mentor-Global-Consultants/near-microbonds-contracts/storage"
	"github.com/Mentor-Global-Consultants/near-microbonds-contracts/storage/casregistry"
)

var (
	flagBin  string
	flagPath string
)

func init() {
	casregistry.MustRegister(casregistry.Backend{
		Name:        "ipfs",
		Description: "IPFS-backed CAS (shells out to the local Kubo CLI)",
		Usage:       casregistry.UsageCLI | casregistry.UsageDaemon,
		RegisterFlags: func(fs *flag.FlagSet) {
			fs.StringVar(&flagBin, "ipfs-bin", "", "Path to the ipfs binary (for --backend=ipfs; default \"ipfs\")")
			fs.StringVar(&flagPath, "ipfs-path", "", "IPFS repo path exported as IPFS_PATH (for --backend=ipfs)")
		},
		Open: func() (storage.CAS, func() error, error) {
			opts := Options{Bin: flagBin}
			if flagPath != "" {
				opts.Env = []string{"IPFS_PATH=" + flagPath}
			}
			return New(opts), nil, nil
		},
	})
}
