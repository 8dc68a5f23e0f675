package d4

// Base names of the files the pipeline reads and writes. The configured
// compression suffix is appended to each.
const (
	ColumnsFile         = "columns.tsv"
	TermsFile           = "terms.tsv"
	EQsFile             = "eqs.tsv"
	SignaturesFile      = "signatures.tsv"
	ExpandedColumnsFile = "expanded-columns.tsv"
	LocalDomainsFile    = "local-domains.tsv"
	StrongDomainsFile   = "strong-domains.tsv"
)

// FileName returns the output name of a base file.
func (p *Pipeline) FileName(base string) string {
	return base + p.opts.compression
}

// stepFile is the file a step writes.
func stepFile(step Step) string {
	switch step {
	case StepIndex:
		return EQsFile
	case StepSignatures:
		return SignaturesFile
	case StepExpand:
		return ExpandedColumnsFile
	case StepLocalDomains:
		return LocalDomainsFile
	default:
		return StrongDomainsFile
	}
}
