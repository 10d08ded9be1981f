// Package storage persists boards, lists and tasks in Azure table
// storage. Lists are partitioned by their board and tasks by their list,
// so all siblings of one parent share a partition and a structural
// mutation's position writes can be submitted as a single transaction.
package storage

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"

	"board-api/domain"
	"board-api/ordering"
)

// aztables caps transactions at 100 actions per batch.
const transactionBatchSize = 100

// Storage provides access to the underlying persistence mechanisms.
type Storage struct {
	boardTable *aztables.Client
	listTable  *aztables.Client
	taskTable  *aztables.Client
	changeFeed *azqueue.QueueClient
}

// New creates a Storage instance from the given connection string.
func New(connStr, boardsTable, listsTable, tasksTable, changeFeedQueue string) (*Storage, error) {
	tablesClientOptions := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute,
				RetryDelay:    time.Second,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &tablesClientOptions)
	if err != nil {
		return nil, err
	}
	queueClientOptions := azqueue.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    5,
				TryTimeout:    time.Minute,
				RetryDelay:    time.Second,
				MaxRetryDelay: time.Minute,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	feed, err := azqueue.NewQueueClientFromConnectionString(connStr, changeFeedQueue, &queueClientOptions)
	if err != nil {
		return nil, err
	}
	return &Storage{
		boardTable: svc.NewClient(boardsTable),
		listTable:  svc.NewClient(listsTable),
		taskTable:  svc.NewClient(tasksTable),
		changeFeed: feed,
	}, nil
}

type boardEntity struct {
	aztables.Entity
	Name        string `json:"Name"`
	Description string `json:"Description"`
	OwnerID     string `json:"OwnerId"`
	CreatedAt   int64  `json:"CreatedAt"`
}

type listEntity struct {
	aztables.Entity
	Title    string `json:"Title"`
	Position int    `json:"Position"`
}

type taskEntity struct {
	aztables.Entity
	BoardID  string `json:"BoardId"`
	Title    string `json:"Title"`
	Notes    string `json:"Notes"`
	Position int    `json:"Position"`
	Done     bool   `json:"Done"`
}

// positionEntity is the merge payload for transactional renumbering.
type positionEntity struct {
	aztables.Entity
	Position int `json:"Position"`
}

// GetBoard retrieves a single board.
func (s *Storage) GetBoard(ctx context.Context, boardID string) (domain.Board, error) {
	resp, err := s.boardTable.GetEntity(ctx, boardID, boardID, nil)
	if err != nil {
		return domain.Board{}, mapError(err)
	}
	var ent boardEntity
	if err := json.Unmarshal(resp.Value, &ent); err != nil {
		return domain.Board{}, err
	}
	return domain.Board{
		ID:          ent.RowKey,
		Name:        ent.Name,
		Description: ent.Description,
		OwnerID:     ent.OwnerID,
		CreatedAt:   ent.CreatedAt,
	}, nil
}

// InsertBoard writes a new board row.
func (s *Storage) InsertBoard(ctx context.Context, board domain.Board) error {
	data, err := json.Marshal(boardEntity{
		Entity:      aztables.Entity{PartitionKey: board.ID, RowKey: board.ID},
		Name:        board.Name,
		Description: board.Description,
		OwnerID:     board.OwnerID,
		CreatedAt:   board.CreatedAt,
	})
	if err != nil {
		return err
	}
	_, err = s.boardTable.AddEntity(ctx, data, nil)
	return mapError(err)
}

// DeleteBoard removes a board together with its lists and their tasks.
func (s *Storage) DeleteBoard(ctx context.Context, boardID string) error {
	lists, err := s.ListsForBoard(ctx, boardID)
	if err != nil {
		return err
	}
	for _, l := range lists {
		if err := s.DeleteList(ctx, boardID, l.ID, nil); err != nil {
			return err
		}
	}
	_, err = s.boardTable.DeleteEntity(ctx, boardID, boardID, nil)
	return mapError(err)
}

// GetList retrieves one list of a board.
func (s *Storage) GetList(ctx context.Context, boardID, listID string) (domain.List, error) {
	resp, err := s.listTable.GetEntity(ctx, boardID, listID, nil)
	if err != nil {
		return domain.List{}, mapError(err)
	}
	var ent listEntity
	if err := json.Unmarshal(resp.Value, &ent); err != nil {
		return domain.List{}, err
	}
	return domain.List{ID: ent.RowKey, BoardID: ent.PartitionKey, Title: ent.Title, Position: ent.Position}, nil
}

// GetTask retrieves one task of a list.
func (s *Storage) GetTask(ctx context.Context, listID, taskID string) (domain.Task, error) {
	resp, err := s.taskTable.GetEntity(ctx, listID, taskID, nil)
	if err != nil {
		return domain.Task{}, mapError(err)
	}
	var ent taskEntity
	if err := json.Unmarshal(resp.Value, &ent); err != nil {
		return domain.Task{}, err
	}
	return taskFromEntity(ent), nil
}

// partitionFilter builds the OData filter selecting one partition. Single
// quotes in the key are doubled, per the OData literal escaping rules, so
// a quote in an identifier cannot malform the filter.
func partitionFilter(partition string) string {
	return "PartitionKey eq '" + strings.ReplaceAll(partition, "'", "''") + "'"
}

// ListsForBoard returns the board's lists ordered by position.
func (s *Storage) ListsForBoard(ctx context.Context, boardID string) ([]domain.List, error) {
	filter := partitionFilter(boardID)
	pager := s.listTable.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	lists := []domain.List{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, mapError(err)
		}
		for _, e := range resp.Entities {
			var ent listEntity
			if err := json.Unmarshal(e, &ent); err != nil {
				return nil, err
			}
			lists = append(lists, domain.List{ID: ent.RowKey, BoardID: ent.PartitionKey, Title: ent.Title, Position: ent.Position})
		}
	}
	sort.Slice(lists, func(i, j int) bool { return lists[i].Position < lists[j].Position })
	return lists, nil
}

// TasksForList returns the list's tasks ordered by position.
func (s *Storage) TasksForList(ctx context.Context, listID string) ([]domain.Task, error) {
	filter := partitionFilter(listID)
	pager := s.taskTable.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	tasks := []domain.Task{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, mapError(err)
		}
		for _, e := range resp.Entities {
			var ent taskEntity
			if err := json.Unmarshal(e, &ent); err != nil {
				return nil, err
			}
			tasks = append(tasks, taskFromEntity(ent))
		}
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].Position < tasks[j].Position })
	return tasks, nil
}

// InsertList writes a new list row together with the shifted siblings'
// positions in one transaction; all rows share the board's partition.
func (s *Storage) InsertList(ctx context.Context, list domain.List, shifted []ordering.Placed) error {
	data, err := json.Marshal(listEntityFrom(list))
	if err != nil {
		return err
	}
	actions := []aztables.TransactionAction{{ActionType: aztables.TransactionTypeAdd, Entity: data}}
	actions, err = appendPositionMerges(actions, list.BoardID, shifted)
	if err != nil {
		return err
	}
	return s.submitActions(ctx, s.listTable, actions)
}

// InsertTask writes a new task row together with the shifted siblings'
// positions in one transaction; all rows share the list's partition.
func (s *Storage) InsertTask(ctx context.Context, task domain.Task, shifted []ordering.Placed) error {
	data, err := json.Marshal(taskEntityFrom(task))
	if err != nil {
		return err
	}
	actions := []aztables.TransactionAction{{ActionType: aztables.TransactionTypeAdd, Entity: data}}
	actions, err = appendPositionMerges(actions, task.ListID, shifted)
	if err != nil {
		return err
	}
	return s.submitActions(ctx, s.taskTable, actions)
}

// UpdateList merges mutable list fields (title) into the stored row.
func (s *Storage) UpdateList(ctx context.Context, list domain.List) error {
	data, err := json.Marshal(listEntityFrom(list))
	if err != nil {
		return err
	}
	_, err = s.listTable.UpdateEntity(ctx, data, &aztables.UpdateEntityOptions{UpdateMode: aztables.UpdateModeMerge})
	return mapError(err)
}

// UpdateTask merges mutable task fields into the stored row.
func (s *Storage) UpdateTask(ctx context.Context, task domain.Task) error {
	data, err := json.Marshal(taskEntityFrom(task))
	if err != nil {
		return err
	}
	_, err = s.taskTable.UpdateEntity(ctx, data, &aztables.UpdateEntityOptions{UpdateMode: aztables.UpdateModeMerge})
	return mapError(err)
}

// UpdateListPositions applies all position changes for one board in a
// single transaction, so a partially renumbered board is never visible.
func (s *Storage) UpdateListPositions(ctx context.Context, boardID string, positions []ordering.Placed) error {
	actions, err := appendPositionMerges(nil, boardID, positions)
	if err != nil {
		return err
	}
	return s.submitActions(ctx, s.listTable, actions)
}

// UpdateTaskPositions applies all position changes for one list in a
// single transaction.
func (s *Storage) UpdateTaskPositions(ctx context.Context, listID string, positions []ordering.Placed) error {
	actions, err := appendPositionMerges(nil, listID, positions)
	if err != nil {
		return err
	}
	return s.submitActions(ctx, s.taskTable, actions)
}

// appendPositionMerges extends actions with one merge per shifted sibling.
func appendPositionMerges(actions []aztables.TransactionAction, partition string, positions []ordering.Placed) ([]aztables.TransactionAction, error) {
	for _, pl := range positions {
		data, err := json.Marshal(positionEntity{
			Entity:   aztables.Entity{PartitionKey: partition, RowKey: pl.ID},
			Position: pl.Position,
		})
		if err != nil {
			return nil, err
		}
		actions = append(actions, aztables.TransactionAction{
			ActionType: aztables.TransactionTypeUpdateMerge,
			Entity:     data,
		})
	}
	return actions, nil
}

// submitActions runs same-partition actions through SubmitTransaction,
// splitting at the service's per-batch action limit.
func (s *Storage) submitActions(ctx context.Context, table *aztables.Client, actions []aztables.TransactionAction) error {
	for start := 0; start < len(actions); start += transactionBatchSize {
		end := start + transactionBatchSize
		if end > len(actions) {
			end = len(actions)
		}
		if _, err := table.SubmitTransaction(ctx, actions[start:end], nil); err != nil {
			return mapError(err)
		}
	}
	return nil
}

// MoveTaskRow transfers a task row to the partition named by task.ListID.
// Tasks in different lists live in different partitions, so the transfer
// is add-then-delete; the destination row appears before the source row
// vanishes and the task is never absent from both lists. Each side's
// sibling renumbering rides in the same transaction as its add or delete.
func (s *Storage) MoveTaskRow(ctx context.Context, task domain.Task, fromListID string, sourceShifted, destShifted []ordering.Placed) error {
	data, err := json.Marshal(taskEntityFrom(task))
	if err != nil {
		return err
	}
	destActions := []aztables.TransactionAction{{ActionType: aztables.TransactionTypeAdd, Entity: data}}
	destActions, err = appendPositionMerges(destActions, task.ListID, destShifted)
	if err != nil {
		return err
	}
	if err := s.submitActions(ctx, s.taskTable, destActions); err != nil {
		return err
	}

	removal, err := json.Marshal(aztables.Entity{PartitionKey: fromListID, RowKey: task.ID})
	if err != nil {
		return err
	}
	sourceActions := []aztables.TransactionAction{{ActionType: aztables.TransactionTypeDelete, Entity: removal}}
	sourceActions, err = appendPositionMerges(sourceActions, fromListID, sourceShifted)
	if err != nil {
		return err
	}
	return s.submitActions(ctx, s.taskTable, sourceActions)
}

// DeleteList removes a list row and every task in its partition. The task
// purge runs first; the list row's removal and the remaining lists'
// renumbering share the board partition and commit as one transaction, so
// readers never see a half-renumbered board.
func (s *Storage) DeleteList(ctx context.Context, boardID, listID string, shifted []ordering.Placed) error {
	tasks, err := s.TasksForList(ctx, listID)
	if err != nil {
		return err
	}
	purge := make([]aztables.TransactionAction, 0, len(tasks))
	for _, task := range tasks {
		data, err := json.Marshal(aztables.Entity{PartitionKey: listID, RowKey: task.ID})
		if err != nil {
			return err
		}
		purge = append(purge, aztables.TransactionAction{
			ActionType: aztables.TransactionTypeDelete,
			Entity:     data,
		})
	}
	if err := s.submitActions(ctx, s.taskTable, purge); err != nil {
		return err
	}

	removal, err := json.Marshal(aztables.Entity{PartitionKey: boardID, RowKey: listID})
	if err != nil {
		return err
	}
	actions := []aztables.TransactionAction{{ActionType: aztables.TransactionTypeDelete, Entity: removal}}
	actions, err = appendPositionMerges(actions, boardID, shifted)
	if err != nil {
		return err
	}
	return s.submitActions(ctx, s.listTable, actions)
}

// DeleteTask removes one task row and renumbers the remaining siblings in
// the same transaction.
func (s *Storage) DeleteTask(ctx context.Context, listID, taskID string, shifted []ordering.Placed) error {
	removal, err := json.Marshal(aztables.Entity{PartitionKey: listID, RowKey: taskID})
	if err != nil {
		return err
	}
	actions := []aztables.TransactionAction{{ActionType: aztables.TransactionTypeDelete, Entity: removal}}
	actions, err = appendPositionMerges(actions, listID, shifted)
	if err != nil {
		return err
	}
	return s.submitActions(ctx, s.taskTable, actions)
}

// FetchBoardView assembles the full read model of a board: the board, its
// ordered lists and each list's ordered tasks.
func (s *Storage) FetchBoardView(ctx context.Context, boardID string) (domain.BoardView, error) {
	board, err := s.GetBoard(ctx, boardID)
	if err != nil {
		return domain.BoardView{}, err
	}
	lists, err := s.ListsForBoard(ctx, boardID)
	if err != nil {
		return domain.BoardView{}, err
	}
	view := domain.BoardView{Board: board, Lists: make([]domain.ListView, 0, len(lists))}
	for _, l := range lists {
		tasks, err := s.TasksForList(ctx, l.ID)
		if err != nil {
			return domain.BoardView{}, err
		}
		view.Lists = append(view.Lists, domain.ListView{List: l, Tasks: tasks})
	}
	return view, nil
}

// PublishChange enqueues a committed change event on the change feed for
// offline consumers.
func (s *Storage) PublishChange(ctx context.Context, ev domain.ChangeEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if _, err := s.changeFeed.EnqueueMessage(ctx, string(data), nil); err != nil {
		return mapError(err)
	}
	return nil
}

func listEntityFrom(list domain.List) listEntity {
	return listEntity{
		Entity:   aztables.Entity{PartitionKey: list.BoardID, RowKey: list.ID},
		Title:    list.Title,
		Position: list.Position,
	}
}

func taskEntityFrom(task domain.Task) taskEntity {
	return taskEntity{
		Entity:   aztables.Entity{PartitionKey: task.ListID, RowKey: task.ID},
		BoardID:  task.BoardID,
		Title:    task.Title,
		Notes:    task.Notes,
		Position: task.Position,
		Done:     task.Done,
	}
}

func taskFromEntity(ent taskEntity) domain.Task {
	return domain.Task{
		ID:       ent.RowKey,
		ListID:   ent.PartitionKey,
		BoardID:  ent.BoardID,
		Title:    ent.Title,
		Notes:    ent.Notes,
		Position: ent.Position,
		Done:     ent.Done,
	}
}
