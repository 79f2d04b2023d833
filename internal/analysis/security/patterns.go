package security

import (
	"regexp"

	"github.com/xkilldash9x/lancet/api/schemas"
)

// patternRule is one line-level signature: category, severity and the regex
// that recognizes it in raw source text.
type patternRule struct {
	category    schemas.Category
	severity    schemas.Severity
	re          *regexp.Regexp
	message     string
	remediation string
	cwe         []string
}

// patternRules is the fixed signature table for the pattern-based detector.
// Flow-based detection catches what these syntactic checks miss; the two
// deliberately overlap and double-report.
var patternRules = []patternRule{
	{
		category:    schemas.CategorySQLInjection,
		severity:    schemas.SeverityHigh,
		re:          regexp.MustCompile(`(?i)(select|insert|update|delete)\s+.*(\+|%s|\$\{|\bformat\b|f")`),
		message:     "SQL statement built by string concatenation",
		remediation: "Use parameterized queries or prepared statements instead of string concatenation.",
		cwe:         []string{"CWE-89"},
	},
	{
		category:    schemas.CategorySQLInjection,
		severity:    schemas.SeverityHigh,
		re:          regexp.MustCompile(`(?i)(execute|query)\s*\(\s*["'].*["']\s*(\+|%)`),
		message:     "Query call concatenates untrusted input into SQL text",
		remediation: "Use parameterized queries or prepared statements instead of string concatenation.",
		cwe:         []string{"CWE-89"},
	},
	{
		category:    schemas.CategoryXSS,
		severity:    schemas.SeverityHigh,
		re:          regexp.MustCompile(`(?i)(innerhtml|outerhtml)\s*[+]?=\s*`),
		message:     "Direct HTML sink assignment",
		remediation: "Assign via textContent or sanitize the value with a vetted HTML sanitizer.",
		cwe:         []string{"CWE-79"},
	},
	{
		category:    schemas.CategoryXSS,
		severity:    schemas.SeverityHigh,
		re:          regexp.MustCompile(`(?i)document\.write\s*\(`),
		message:     "document.write with dynamic content",
		remediation: "Avoid document.write; build DOM nodes and set text content explicitly.",
		cwe:         []string{"CWE-79"},
	},
	{
		category:    schemas.CategoryCommandInjection,
		severity:    schemas.SeverityHigh,
		re:          regexp.MustCompile(`(?i)(eval|exec)\s*\(.*(\+|%|\bformat\b|f")`),
		message:     "Dynamic code execution with concatenated input",
		remediation: "Never pass user-controllable strings to eval/exec; use a safe dispatch table.",
		cwe:         []string{"CWE-95"},
	},
	{
		category:    schemas.CategoryCommandInjection,
		severity:    schemas.SeverityHigh,
		re:          regexp.MustCompile(`(?i)(os\.system|subprocess\.(call|run|popen)|child_process|execsync)\s*\(.*(\+|%|\bformat\b|f"|shell\s*=\s*true)`),
		message:     "Shell command built from dynamic input",
		remediation: "Pass argument vectors instead of shell strings and avoid shell=True.",
		cwe:         []string{"CWE-78"},
	},
	{
		category:    schemas.CategoryPathTraversal,
		severity:    schemas.SeverityMedium,
		re:          regexp.MustCompile(`\.\./|\.\.\\`),
		message:     "Directory traversal sequence in path expression",
		remediation: "Canonicalize paths and verify they stay inside the intended root.",
		cwe:         []string{"CWE-22"},
	},
	{
		category:    schemas.CategoryXXE,
		severity:    schemas.SeverityHigh,
		re:          regexp.MustCompile(`(?i)<!ENTITY|<!DOCTYPE[^>]+SYSTEM`),
		message:     "XML external entity declaration",
		remediation: "Disable DTD processing and external entity resolution in the XML parser.",
		cwe:         []string{"CWE-611"},
	},
	{
		category:    schemas.CategorySSRF,
		severity:    schemas.SeverityMedium,
		re:          regexp.MustCompile(`(?i)https?://(127\.0\.0\.1|localhost|0\.0\.0\.0|169\.254\.169\.254)`),
		message:     "Request to loopback or metadata address",
		remediation: "Validate outbound URLs against an allowlist of hosts.",
		cwe:         []string{"CWE-918"},
	},
	{
		category:    schemas.CategoryInsecureDeserialization,
		severity:    schemas.SeverityHigh,
		re:          regexp.MustCompile(`(?i)(pickle\.loads|yaml\.load\s*\((?:[^)]*[^e)])?\)|unserialize\s*\()`),
		message:     "Deserialization of untrusted data",
		remediation: "Use a safe loader (yaml.safe_load, JSON) for untrusted input.",
		cwe:         []string{"CWE-502"},
	},
	{
		category:    schemas.CategoryCryptography,
		severity:    schemas.SeverityMedium,
		re:          regexp.MustCompile(`(?i)\b(md5|sha1)\s*\(`),
		message:     "Weak cryptographic hash",
		remediation: "Use SHA-256 or stronger; for passwords use a dedicated KDF.",
		cwe:         []string{"CWE-327"},
	},
}

// secretRe drives the symbol-based hardcoded-secret detector.
var secretRe = regexp.MustCompile(`(?i)(password|passwd|secret|api_?key|token|credential)\s*[:=]\s*["'][^"']{4,}["']`)

// flowSeverity fixes the severity of a flow-based issue per sink category.
// Injection classes default to high; traversal and request forgery to medium.
var flowSeverity = map[string]schemas.Severity{
	"sql":     schemas.SeverityHigh,
	"html":    schemas.SeverityHigh,
	"command": schemas.SeverityHigh,
	"ldap":    schemas.SeverityHigh,
	"path":    schemas.SeverityMedium,
	"url":     schemas.SeverityMedium,
}

// flowCategory maps sink categories to issue categories.
var flowCategory = map[string]schemas.Category{
	"sql":     schemas.CategorySQLInjection,
	"html":    schemas.CategoryXSS,
	"command": schemas.CategoryCommandInjection,
	"ldap":    schemas.CategoryLDAPInjection,
	"path":    schemas.CategoryPathTraversal,
	"url":     schemas.CategorySSRF,
}

var flowRemediation = map[string]string{
	"sql":     "Use parameterized queries; never interpolate tainted values into SQL.",
	"html":    "Encode or sanitize tainted values before inserting them into the DOM.",
	"command": "Do not pass tainted values to process execution; use argument vectors and allowlists.",
	"ldap":    "Escape LDAP metacharacters in tainted values before building filters.",
	"path":    "Canonicalize tainted paths and enforce a base-directory check.",
	"url":     "Validate tainted URLs against an allowlist before fetching them.",
}

var flowCWE = map[string][]string{
	"sql":     {"CWE-89"},
	"html":    {"CWE-79"},
	"command": {"CWE-78"},
	"ldap":    {"CWE-90"},
	"path":    {"CWE-22"},
	"url":     {"CWE-918"},
}

// generalRecommendations is appended whenever any issue exists.
var generalRecommendations = []string{
	"Validate and sanitize all external input at trust boundaries.",
	"Apply the principle of least privilege to database and OS access.",
	"Keep dependencies patched and monitor security advisories.",
}
