package recovery

import "os"

// reapEmptyLogfiles is the Empty-Logfile Reaper (C8, §4.8): best-effort
// removal of every log file the scanner classified as containing nothing
// but HEADER/FOOTER.
func (e *Engine) reapEmptyLogfiles() {
	for _, path := range e.state.emptyLogfiles {
		info, statErr := os.Stat(path)

		if err := os.Remove(path); err != nil {
			if !os.IsNotExist(err) {
				e.logger.Warn("recovery: failed to remove empty log file %s: %v", path, err)
			}
			continue
		}

		e.report.LogFilesReclaimed++
		if statErr == nil {
			e.report.BytesReclaimed += uint64(info.Size())
		}
	}
	e.state.emptyLogfiles = nil
}
