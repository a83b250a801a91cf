// Package tools defines the builtin Genkit tools agents can reference by
// name from the roster: current_time, web_fetch, and web_search.
//
// Tools are grouped by concern (Clock, NetworkTools), each with a NewX
// constructor that validates dependencies and a RegisterX function that
// defines the tools on a Genkit instance and returns them. Handlers are
// wrapped with WithEvents so a context-carried Emitter sees tool
// lifecycle transitions; the streaming backend installs one per run and
// converts the callbacks to tool-call events.
//
// Simple handlers report through the Result envelope: business failures
// travel in Result.Error where the model can read and correct them, and a
// Go error means only that the call itself could not complete (context
// cancellation). Network handlers return typed outputs instead because
// their result shape (per-URL successes and failures) is part of the tool
// contract.
package tools
