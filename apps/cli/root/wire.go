package root

import (
	"github.com/zenGate-Global/palmyra-contracts/apps/cli/cmd/migrate"
	"github.com/zenGate-Global/palmyra-contracts/apps/cli/cmd/replay"
	"github.com/zenGate-Global/palmyra-contracts/apps/cli/cmd/show"
)

func init() {
	Root().AddCommand(migrate.Command())
	Root().AddCommand(replay.Command())
	Root().AddCommand(show.Command())
}
