package frontier

/*
Frontier Responsibilities
- Deduplicate requests by fingerprint (DupeFilter)
- Hold pending requests ordered by priority, then arrival (Store)
- Optionally persist both to a job directory so a crawl can resume
- Knows nothing about:
	- fetching
	- extraction
	- item processing
	- origin lifecycle

It is a data structure + policy module, not a pipeline executor.
Every exported type guards its own state with a mutex.
*/
