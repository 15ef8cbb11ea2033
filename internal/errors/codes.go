package errors

// Error codes for the decompiler.
// These codes are used in diagnostics, the CLI failure list and the
// language server to identify a failure class independently of its text.
//
// Error code ranges:
// D0001-D0099: Pipeline errors (fatal to one function unless noted)
// D0100-D0199: Listing and loader errors
// D0200-D0299: Orchestrator errors
// D0300-D0399: Configuration errors

const (
	// D0001: Unresolved jump target or inconsistent block boundaries
	ErrorMalformedControlFlow = "D0001"

	// D0002: Upvalue index beyond the function's declared upvalue count
	ErrorUnboundUpvalueReference = "D0002"

	// D0003: Lifted instruction the pipeline cannot structure
	ErrorUnimplementedInstruction = "D0003"

	// D0004: Analysis read after a structural mutation without invalidation
	ErrorAnalysisStalenessViolation = "D0004"

	// D0005: Looped pass group hit its iteration ceiling (warning)
	ErrorFixpointNotReached = "D0005"

	// D0006: A pass failed for a reason outside the other classes
	ErrorPassFailure = "D0006"

	// Listing and loader errors (D0100-D0199)

	// D0100: Listing does not parse
	ErrorListingSyntax = "D0100"

	// D0101: Listing format version unsupported
	ErrorListingVersion = "D0101"

	// D0102: Constant reference outside the constants table
	ErrorUnknownConstant = "D0102"

	// D0103: Duplicate function id or address
	ErrorDuplicateDefinition = "D0103"

	// Orchestrator errors (D0200-D0299)

	// D0200: Unknown dialect name
	ErrorUnknownDialect = "D0200"

	// Configuration errors (D0300-D0399)

	// D0300: Configuration file unreadable or invalid
	ErrorInvalidConfig = "D0300"
)

// GetErrorDescription returns a human-readable description of the error code
func GetErrorDescription(code string) string {
	switch code {
	case ErrorMalformedControlFlow:
		return "A jump targets an address with no instruction, or block boundaries are inconsistent"
	case ErrorUnboundUpvalueReference:
		return "An upvalue index exceeds the function's declared upvalue count"
	case ErrorUnimplementedInstruction:
		return "The lifter produced an instruction with no structured translation"
	case ErrorAnalysisStalenessViolation:
		return "A pass read a dominance or def-use analysis after changing the block graph"
	case ErrorFixpointNotReached:
		return "A looped pass group did not converge within its iteration ceiling"
	case ErrorPassFailure:
		return "A pass failed unexpectedly"
	case ErrorListingSyntax:
		return "The listing file is not well formed"
	case ErrorListingVersion:
		return "The listing format version is not supported"
	case ErrorUnknownConstant:
		return "An instruction references a constant that is not in the constants table"
	case ErrorDuplicateDefinition:
		return "A function id or instruction address is defined twice"
	case ErrorUnknownDialect:
		return "The requested dialect has no registered pass list"
	case ErrorInvalidConfig:
		return "The configuration file could not be read"
	default:
		return "Unknown error"
	}
}

// IsWarning reports whether code is reported without failing the function.
func IsWarning(code string) bool {
	return code == ErrorFixpointNotReached
}
