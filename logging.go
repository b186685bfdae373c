package uvgrtp

import "github.com/sirupsen/logrus"

// componentLog returns a logger pre-tagged with the owning component so
// log lines from sender, receiver, rtcp and zrtp code are easy to filter
// without grepping message text.
func componentLog(component string) *logrus.Entry {
	return logrus.WithField("component", component)
}

type logrusEntryHolder = logrus.Entry

func newLogrusEntryHolder(component string) *logrusEntryHolder {
	return componentLog(component)
}
