package harness

import "fmt"

// CheckExpectations validates a run's trace against the scenario's expect
// block. All expectations are checked; failures are joined into one error
// so a broken scenario reports everything at once.
func CheckExpectations(scenario *Scenario, result *Result) error {
	var failures []string

	for _, exp := range scenario.Expect {
		entry, ok := result.entry(exp.Trigger)
		if !ok {
			failures = append(failures,
				fmt.Sprintf("trigger %s: not in trace", exp.Trigger))
			continue
		}
		if entry.Status != exp.Status {
			failures = append(failures,
				fmt.Sprintf("trigger %s: status %s, want %s",
					exp.Trigger, entry.Status, exp.Status))
		}
		if exp.EventReports != nil && len(entry.EventReports) != *exp.EventReports {
			failures = append(failures,
				fmt.Sprintf("trigger %s: %d event reports, want %d",
					exp.Trigger, len(entry.EventReports), *exp.EventReports))
		}
		if exp.AggregateReports != nil && len(entry.AggregateReports) != *exp.AggregateReports {
			failures = append(failures,
				fmt.Sprintf("trigger %s: %d aggregate reports, want %d",
					exp.Trigger, len(entry.AggregateReports), *exp.AggregateReports))
		}
	}

	if len(failures) == 0 {
		return nil
	}
	msg := failures[0]
	for _, f := range failures[1:] {
		msg += "; " + f
	}
	return fmt.Errorf("expectations failed: %s", msg)
}
