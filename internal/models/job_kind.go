package models

// JobKind identifies one of the independent long-running backend jobs
type JobKind string

const (
	JobKindNews           JobKind = "news"
	JobKindFundNews       JobKind = "fund-news"
	JobKindReports        JobKind = "reports"
	JobKindDIPAFunds      JobKind = "dipa-funds"
	JobKindProfileChanges JobKind = "profile-changes"
	JobKindEmbeddings     JobKind = "embeddings"
	JobKindDataMart       JobKind = "datamart"
)

// JobKindSpec holds the catalog defaults of a job kind
type JobKindSpec struct {
	Kind          JobKind
	Title         string
	BasePath      string // Backend path prefix; status/start/stop are appended
	UnitLabel     string // What processed_units/total_units count
	ProducedLabel string // What produced_count counts
	// AllowFreshRestart permits a fresh start while a resumable run exists.
	// Only kinds whose runs are independent rebuilds allow it.
	AllowFreshRestart bool
}

// StartCapability is the capability checked before start and resume
func (s JobKindSpec) StartCapability() string {
	return string(s.Kind) + ".start"
}

// StopCapability is the capability checked before stop
func (s JobKindSpec) StopCapability() string {
	return string(s.Kind) + ".stop"
}

var jobKindCatalog = []JobKindSpec{
	{
		Kind:          JobKindNews,
		Title:         "뉴스 수집",
		BasePath:      "/api/news-collection",
		UnitLabel:     "investors",
		ProducedLabel: "articles",
	},
	{
		Kind:          JobKindFundNews,
		Title:         "펀드 뉴스 수집",
		BasePath:      "/api/fund-news-collection",
		UnitLabel:     "funds",
		ProducedLabel: "articles",
	},
	{
		Kind:          JobKindReports,
		Title:         "리포트 수집",
		BasePath:      "/api/report-collection",
		UnitLabel:     "reports",
		ProducedLabel: "documents",
	},
	{
		Kind:          JobKindDIPAFunds,
		Title:         "DIPA 펀드 동기화",
		BasePath:      "/api/dipa-sync",
		UnitLabel:     "funds",
		ProducedLabel: "funds",
	},
	{
		Kind:          JobKindProfileChanges,
		Title:         "프로필 변경 감지",
		BasePath:      "/api/profile-changes",
		UnitLabel:     "investors",
		ProducedLabel: "changes",
	},
	{
		Kind:              JobKindEmbeddings,
		Title:             "임베딩 / 벡터 DB 구축",
		BasePath:          "/api/embeddings",
		UnitLabel:         "documents",
		ProducedLabel:     "vectors",
		AllowFreshRestart: true,
	},
	{
		Kind:          JobKindDataMart,
		Title:         "데이터마트 수집",
		BasePath:      "/api/datamart-collection",
		UnitLabel:     "tables",
		ProducedLabel: "rows",
	},
}

// AllJobKinds returns the catalog in display order
func AllJobKinds() []JobKindSpec {
	out := make([]JobKindSpec, len(jobKindCatalog))
	copy(out, jobKindCatalog)
	return out
}

// LookupJobKind returns the catalog entry for kind
func LookupJobKind(kind JobKind) (JobKindSpec, bool) {
	for _, spec := range jobKindCatalog {
		if spec.Kind == kind {
			return spec, true
		}
	}
	return JobKindSpec{}, false
}

// ParseJobKind validates a kind name
func ParseJobKind(name string) (JobKind, bool) {
	spec, ok := LookupJobKind(JobKind(name))
	return spec.Kind, ok
}
