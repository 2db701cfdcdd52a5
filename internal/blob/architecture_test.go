package blob

import (
	"sort"
	"strings"
	"testing"

	"golang.org/x/tools/go/packages"
)

// Record stores reach object storage through blob.Store only. The concrete
// drivers stay behind this package and the AWS SDK stays inside the s3
// driver.
func TestBlobDriversStayBehindFacade(t *testing.T) {
	boundaries := []struct {
		imported string
		allowed  []string
	}{
		{imported: "btocore/internal/infra/blob", allowed: []string{"btocore/internal/blob", "btocore/internal/infra/blob"}},
		{imported: "github.com/aws/aws-sdk-go-v2", allowed: []string{"btocore/internal/infra/blob/s3"}},
	}

	cfg := &packages.Config{Mode: packages.NeedName | packages.NeedImports, Tests: true}
	pkgs, err := packages.Load(cfg, "btocore/...")
	if err != nil {
		t.Fatalf("load packages: %v", err)
	}

	seen := make(map[string]struct{})
	for _, pkg := range pkgs {
		// test variants report paths such as x.test and x_test
		owner := strings.TrimSuffix(strings.TrimSuffix(pkg.PkgPath, ".test"), "_test")
		for _, b := range boundaries {
			if underAny(owner, b.allowed) {
				continue
			}
			for importPath := range pkg.Imports {
				if under(importPath, b.imported) {
					seen[pkg.PkgPath+" imports "+importPath] = struct{}{}
				}
			}
		}
	}
	if len(seen) == 0 {
		return
	}
	violations := make([]string, 0, len(seen))
	for v := range seen {
		violations = append(violations, v)
	}
	sort.Strings(violations)
	t.Fatalf("blob driver boundary crossed:\n%s", strings.Join(violations, "\n"))
}

func under(path, prefix string) bool {
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}

func underAny(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if under(path, p) {
			return true
		}
	}
	return false
}
