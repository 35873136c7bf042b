package host_test

import (
	"context"
	"testing"

	"github.com/joho/godotenv"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/opencode-ai/chathost/citest/testutil"
)

var (
	harness *testutil.Harness
	ctx     context.Context
)

func TestHost(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Host Suite")
}

var _ = BeforeSuite(func() {
	_ = godotenv.Load("../../.env")

	harness = testutil.NewHarness()
	ctx = context.Background()
})

var _ = AfterSuite(func() {
	if harness != nil {
		harness.Stop()
	}
})
