package structure

import (
	"flag"
	"os"
	"testing"

	"github.com/klauern/dxnodes/internal/util"
)

var update = flag.Bool("update", false, "rewrite golden files in testdata")

func TestMain(m *testing.M) {
	flag.Parse()
	util.SetUpdateGolden(*update)
	os.Exit(m.Run())
}
