// Package dataset is an in-process partitioned key/value dataset used as the
// compute substrate of the BSP engine. Datasets are immutable; every
// operation returns a new dataset and runs its partitions in parallel.
// Shuffling operations repartition by an xxhash of the key and sort each
// partition by key, so their output depends only on the input pairs and the
// partition count.
package dataset
