package prompter

// CalculateBackoff exposes calculateBackoff to tests.
var CalculateBackoff = calculateBackoff
