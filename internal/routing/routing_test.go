package routing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleManagement = "# Memory Exchange Management\n\n" +
	"Routes code paths to knowledge domains.\n\n" +
	"```yaml\n" +
	"routes:\n" +
	"  backend: ['services/api/**', 'internal/server/']\n" +
	"  frontend: ['web/src/**/components']\n" +
	"  shared: ['libs/']\n" +
	"```\n"

func TestParse_ExtractsDomainsInDeclarationOrder(t *testing.T) {
	m, err := Parse(sampleManagement)
	require.NoError(t, err)
	require.Len(t, m.entries, 3)
	assert.Equal(t, "backend", m.entries[0].domain)
	assert.Equal(t, "frontend", m.entries[1].domain)
	assert.Equal(t, "shared", m.entries[2].domain)
}

func TestParse_NoFencedBlockYieldsEmptyMap(t *testing.T) {
	m, err := Parse("# Just a title\n\nno code blocks here\n")
	require.NoError(t, err)
	assert.Empty(t, m.entries)
	assert.Empty(t, m.DomainsForCodePath("anything"))
}

func TestParse_TolerantOfYmlAlias(t *testing.T) {
	content := "```yml\n  solo: ['pkg/solo/']\n```\n"
	m, err := Parse(content)
	require.NoError(t, err)
	require.Len(t, m.entries, 1)
	assert.Equal(t, "solo", m.entries[0].domain)
}

func TestDomainFromSourcePath_DomainsPrefixReturnsSecondSegment(t *testing.T) {
	assert.Equal(t, "backend", DomainFromSourcePath("domains/backend/deploy.md"))
	assert.Equal(t, "frontend", DomainFromSourcePath(`domains\frontend\readme.md`))
}

func TestDomainFromSourcePath_NonDomainsPrefixReturnsRoot(t *testing.T) {
	assert.Equal(t, "root", DomainFromSourcePath("docs/readme.md"))
	assert.Equal(t, "root", DomainFromSourcePath("domains"))
	assert.Equal(t, "root", DomainFromSourcePath("domains/"))
}

func TestDomainsForCodePath_DoubleStarMatchesPrefixAndSuffix(t *testing.T) {
	m, err := Parse(sampleManagement)
	require.NoError(t, err)

	domains := m.DomainsForCodePath("services/api/handlers/user.go")
	assert.Contains(t, domains, "backend")

	domains = m.DomainsForCodePath("web/src/shared/components/Button.tsx")
	assert.Contains(t, domains, "frontend")
}

func TestDomainsForCodePath_PlainSubstringMatch(t *testing.T) {
	m, err := Parse(sampleManagement)
	require.NoError(t, err)

	domains := m.DomainsForCodePath("libs/util/strings.go")
	assert.Contains(t, domains, "shared")
}

func TestDomainsForCodePath_NoMatchReturnsEmpty(t *testing.T) {
	m, err := Parse(sampleManagement)
	require.NoError(t, err)

	domains := m.DomainsForCodePath("unrelated/path/file.go")
	assert.Empty(t, domains)
}

func TestDomainsForCodePath_EachDomainReturnedAtMostOnce(t *testing.T) {
	content := "```yaml\n  dup: ['services/**', 'services/api/']\n```\n"
	m, err := Parse(content)
	require.NoError(t, err)

	domains := m.DomainsForCodePath("services/api/handler.go")
	assert.Equal(t, []string{"dup"}, domains)
}

func TestDomainsForCodePath_CaseInsensitive(t *testing.T) {
	content := "```yaml\n  backend: ['Services/API/']\n```\n"
	m, err := Parse(content)
	require.NoError(t, err)

	domains := m.DomainsForCodePath("services/api/handler.go")
	assert.Contains(t, domains, "backend")
}

func TestDomainsForCodePath_NilMapReturnsEmpty(t *testing.T) {
	var m *Map
	assert.Empty(t, m.DomainsForCodePath("anything.go"))
}

func TestParseFile_PropagatesReadErrorAsIOError(t *testing.T) {
	_, err := ParseFile(func() (string, error) {
		return "", assertErr{}
	})
	require.Error(t, err)
}

type assertErr struct{}

func (assertErr) Error() string { return "boom" }
