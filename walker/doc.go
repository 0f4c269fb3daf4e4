// Package walker evaluates search parameter path expressions against FHIR
// resources.
//
// Search parameter expressions use a small subset of FHIRPath:
//
//	Patient.name.family | Practitioner.name.family
//	(Observation.value as Quantity)
//	Observation.subject.where(resolve() is Patient)
//	Patient.telecom.where(system='email')
//	Patient.extension('http://hl7.org/fhir/StructureDefinition/patient-birthPlace').value
//	Condition.onset.as(Age)
//
// The walker navigates the decoded JSON tree and tags every node with its FHIR
// type code using a schema.Index, so that choice elements (value[x]) resolve to
// their concrete type and each matched node decodes to the right value.Value.
// Nodes the schema does not know are classified structurally with value.Infer.
//
// # Supported constructs
//
//   - member navigation, with arrays flattened
//   - a leading type name, which filters the root resource by type
//   - unions (|) and parentheses
//   - the type operators "as" and "is"
//   - where(criteria), as(T), ofType(T), extension(url) and first()
//
// Any other function is rejected with ErrUnsupportedFunction. where() criteria
// of the form "resolve() is T" are answered from the literal reference; other
// criteria are delegated to a service.CriteriaEvaluator.
//
// # Thread Safety
//
// An Evaluator is safe for concurrent use. Parsed expressions are cached and
// shared between goroutines; evaluation never mutates the document.
package walker
